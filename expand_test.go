package levelhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 6: level_size=5, bucket_size=10, auto_expand=false: insert
// (2^5 + 2^4)*10 - 10 = 470 keys; expand(); all keys still resolve;
// km_level_size == 6.
func TestExpandScenario(t *testing.T) {
	h := openTestHandle(t, func(o *Options) {
		o.LevelSize = 5
		o.BucketSize = 10
		autoExpand := false
		o.AutoExpand = &autoExpand
	})

	const n = 470
	for i := uint64(0); i < n; i++ {
		require.NoError(t, h.Put(u64key(i), u64key(i*2)), "insert %d", i)
	}

	require.NoError(t, h.Expand())
	require.Equal(t, uint8(6), h.meta.kmLevelSize())

	for i := uint64(0); i < n; i++ {
		got, err := h.Get(u64key(i))
		require.NoError(t, err)
		require.Equal(t, u64key(i*2), got, "key %d", i)
	}
}

// Expansion monotonicity: km_level_size increases by 1; the new
// km_l0_addr equals the previous interim offset, and the new km_l1_addr
// equals the previous km_l0_addr; total occupancy is unchanged.
func TestExpandMonotonicity(t *testing.T) {
	h := openTestHandle(t, func(o *Options) {
		o.LevelSize = 4
		o.BucketSize = 8
		autoExpand := false
		o.AutoExpand = &autoExpand
	})

	for i := uint64(0); i < 50; i++ {
		require.NoError(t, h.Put(u64key(i), u64key(i)))
	}

	prevLevelSize := h.meta.kmLevelSize()
	prevL0 := h.meta.kmL0Addr()
	prevUsed := h.itemCounts[0] + h.itemCounts[1]
	prevInterimOffset := uint64(h.km.mf.bodyLen)

	require.NoError(t, h.Expand())

	require.Equal(t, prevLevelSize+1, h.meta.kmLevelSize())
	require.Equal(t, prevInterimOffset, h.meta.kmL0Addr())
	require.Equal(t, prevL0, h.meta.kmL1Addr())
	require.Equal(t, prevUsed, h.itemCounts[0]+h.itemCounts[1])
}

func TestMaxLevelSizeReached(t *testing.T) {
	h := openTestHandle(t, nil)
	h.meta.setKmLevelSize(LevelSizeMax)

	err := h.Expand()
	require.Error(t, err)
	require.True(t, IsKind(err, KindMaxLevelSizeReached))
}

func TestAutoExpandOnLoadFactorThreshold(t *testing.T) {
	h := openTestHandle(t, func(o *Options) {
		o.LevelSize = 3
		o.BucketSize = 4
		o.LoadFactorThreshold = 0.5
	})

	startLevelSize := h.meta.kmLevelSize()
	total := h.totalSlots()

	target := uint64(float64(total) * 0.5)
	for i := uint64(0); i < target+1; i++ {
		require.NoError(t, h.Put(u64key(i), u64key(i)))
	}

	require.Greater(t, h.meta.kmLevelSize(), startLevelSize)
}
