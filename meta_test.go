package levelhash

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Lazy meta initialization: each field defaults independently rather
// than all-or-nothing.
func TestMetaDefaultsOnFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx._meta")

	m, err := openMetaRegion(path, 8, 10)
	require.NoError(t, err)
	defer m.close()

	require.Equal(t, uint32(1), m.valVersion())
	require.Equal(t, uint32(1), m.kmVersion())
	require.Equal(t, uint64(1), m.valNextAddr())
	require.Equal(t, uint64(0), m.valTailAddr())
	require.Equal(t, uint8(8), m.kmLevelSize())
	require.Equal(t, uint8(10), m.kmBucketSize())
	require.Equal(t, uint64(0), m.kmL0Addr())
	require.Equal(t, uint64(0), m.kmL1Addr())
}

func TestMetaPreservesExistingFieldsOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx._meta")

	m, err := openMetaRegion(path, 8, 10)
	require.NoError(t, err)
	m.setValTailAddr(123)
	m.setKmL0Addr(456)
	require.NoError(t, m.close())

	m2, err := openMetaRegion(path, 99, 99) // differing requested defaults must not override stored values
	require.NoError(t, err)
	defer m2.close()

	require.Equal(t, uint64(123), m2.valTailAddr())
	require.Equal(t, uint64(456), m2.kmL0Addr())
	require.Equal(t, uint8(8), m2.kmLevelSize())
	require.Equal(t, uint8(10), m2.kmBucketSize())
}
