package quota

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		score int
		free  int
		paid  int
	}{
		{score: 100, free: 5, paid: 0},
		{score: 80, free: 5, paid: 0},
		{score: 79, free: 3, paid: 0},
		{score: 75, free: 3, paid: 0},
		{score: 74, free: 1, paid: 0},
		{score: 65, free: 1, paid: 0},
		{score: 64, free: 0, paid: 3},
		{score: 50, free: 0, paid: 3},
		{score: 49, free: 0, paid: 2},
		{score: 35, free: 0, paid: 2},
		{score: 34, free: 0, paid: 1},
		{score: 20, free: 0, paid: 1},
		{score: 19, free: 0, paid: 0},
		{score: 0, free: 0, paid: 0},
	}
	for _, tc := range cases {
		tier := tierFor(tc.score)
		require.Equal(t, tc.free, tier.FreeSlots, "free slots for score %d", tc.score)
		require.Equal(t, tc.paid, tier.PaidSlots, "paid slots for score %d", tc.score)
	}
}

func TestTierForMonotonicFreeSlots(t *testing.T) {
	previous := -1
	for score := 0; score <= 100; score++ {
		free := tierFor(score).FreeSlots
		require.GreaterOrEqual(t, free, previous, "free slots regressed at score %d", score)
		previous = free
	}
}

func TestNextTier(t *testing.T) {
	next, ok := nextTier(72)
	require.True(t, ok)
	require.Equal(t, 75, next.MinScore)
	require.Equal(t, 3, next.FreeSlots)

	next, ok = nextTier(10)
	require.True(t, ok)
	require.Equal(t, 65, next.MinScore)
	require.Equal(t, 1, next.FreeSlots)

	next, ok = nextTier(77)
	require.True(t, ok)
	require.Equal(t, 80, next.MinScore)

	_, ok = nextTier(90)
	require.False(t, ok)
}
