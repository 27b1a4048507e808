package levelhash

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestValues(t *testing.T) (*valuesStore, *metaRegion) {
	t.Helper()
	dir := t.TempDir()
	meta, err := openMetaRegion(filepath.Join(dir, "idx._meta"), LevelSizeDefault, BucketSizeDefault)
	require.NoError(t, err)
	t.Cleanup(func() { meta.close() })

	vals, err := openValuesStore(filepath.Join(dir, "idx.index"))
	require.NoError(t, err)
	t.Cleanup(func() { vals.close() })

	return vals, meta
}

func TestValuesAppendReadRoundTrip(t *testing.T) {
	vals, meta := openTestValues(t)

	addr, err := vals.append(meta, []byte("hello"), []byte("world"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), addr)

	key, err := vals.readKey(addr)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), key)

	val, err := vals.readValue(addr)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), val)

	require.True(t, vals.keyeq(addr, []byte("hello")))
	require.False(t, vals.keyeq(addr, []byte("nope!")))
}

// Values layout sanity: after inserting N keys with fixed sizes
// (key_size=4, value_size=6) and no deletions, record i begins at a
// fixed stride of align_8(entry_size) within the values file body,
// entry_size = 8+4+6 = 18, aligned up to 24.
func TestValuesLayoutSanity(t *testing.T) {
	vals, meta := openTestValues(t)

	const entrySize = 18          // 8 header + 4 key + 6 value
	const alignedEntrySize = 24   // align_8(18)
	require.Equal(t, uint64(alignedEntrySize), align8(entrySize))

	for i := 0; i < 5; i++ {
		key := []byte{byte(i), byte(i), byte(i), byte(i)}
		value := []byte{1, 2, 3, 4, 5, 6}
		addr, err := vals.append(meta, key, value)
		require.NoError(t, err)

		wantBodyOffset := uint64(i) * alignedEntrySize
		require.Equal(t, wantBodyOffset+1, addr, "record %d address", i)
	}
}

func TestValuesDeleteFreesRecord(t *testing.T) {
	vals, meta := openTestValues(t)

	addr, err := vals.append(meta, []byte("k"), []byte("v"))
	require.NoError(t, err)

	require.NoError(t, vals.delete(meta, addr))

	keySize, valueSize, err := vals.recordLens(addr)
	require.NoError(t, err)
	require.Zero(t, keySize)
	require.Zero(t, valueSize)

	// Deleting the tail record rewinds val_next_addr for reuse.
	require.Equal(t, addr, meta.valNextAddr())
}

func TestValuesUpdateInPlaceShrinkAndGrow(t *testing.T) {
	vals, meta := openTestValues(t)

	addr, err := vals.append(meta, []byte("k"), []byte("abcdef"))
	require.NoError(t, err)

	fit, err := vals.updateInPlace(addr, []byte("xyz"))
	require.NoError(t, err)
	require.True(t, fit)

	val, err := vals.readValue(addr)
	require.NoError(t, err)
	require.Equal(t, []byte("xyz"), val)

	fit, err = vals.updateInPlace(addr, []byte("waytoolongforthisrecord"))
	require.NoError(t, err)
	require.False(t, fit)
}

func TestValuesGrowsInSegments(t *testing.T) {
	vals, meta := openTestValues(t)

	initialLen := vals.mf.bodyLen
	require.Equal(t, int64(valuesSegmentSize), initialLen)

	big := make([]byte, valuesSegmentSize)
	_, err := vals.append(meta, []byte("k"), big)
	require.NoError(t, err)

	require.Greater(t, vals.mf.bodyLen, initialLen)
	require.Equal(t, int64(0), vals.mf.bodyLen%valuesSegmentSize)
}
