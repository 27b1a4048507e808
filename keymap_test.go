package levelhash

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotAddrFormula(t *testing.T) {
	// slot_addr(L,u,j) = level_base + 8*bucket_size*u + 8*j
	require.Equal(t, uint64(100), slotAddr(100, 10, 0, 0))
	require.Equal(t, uint64(100+8*10*3+8*2), slotAddr(100, 10, 3, 2))
}

func TestLevelBucketCounts(t *testing.T) {
	require.Equal(t, uint64(256), levelBucketCount(8, 0))
	require.Equal(t, uint64(128), levelBucketCount(8, 1))
}

func TestKeymapSlotReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx._keymap")
	km, err := openKeymap(path, 4, 4)
	require.NoError(t, err)
	defer km.close()

	addr := slotAddr(0, 4, 1, 2)
	v, err := km.readSlot(addr)
	require.NoError(t, err)
	require.Zero(t, v)

	require.NoError(t, km.writeSlot(addr, 777))
	v, err = km.readSlot(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(777), v)
}

func TestPrepareInterimGrowsMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx._keymap")
	km, err := openKeymap(path, 4, 4)
	require.NoError(t, err)
	defer km.close()

	before := km.mf.bodyLen
	base, err := km.prepareInterim(32, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(before), base)
	require.Equal(t, before+32*4*8, km.mf.bodyLen)
}
