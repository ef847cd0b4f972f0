package bucket

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeBucketList_BucketingSanity(t *testing.T) {
	// bucket size 5s, timestamps [100,101,102,115].
	tbl := New(5)
	for _, ts := range []int64{100, 101, 102, 115} {
		tbl.Append(ts)
	}

	require.Equal(t, int64(3), tbl.Size())
	assert.True(t, tbl.variance.StdDev() >= 0)
}

func TestTimeBucketList_EmptyBucketsCountAsZero(t *testing.T) {
	tbl := New(5)
	tbl.Append(0)   // bucket 0, count 1
	tbl.Append(100) // bucket 20: buckets 1..19 are 19 empty closed buckets + bucket 0 closes as 1

	require.Equal(t, int64(20), tbl.Size())
	// 19 zeros + one 1 => mean = 1/20
	assert.InDelta(t, 1.0/20.0, tbl.variance.Mean(), 1e-9)
}

func TestTimeBucketList_ResetOnLargeGap(t *testing.T) {
	tbl := New(5)
	tbl.Append(0)
	tbl.Append(1000) // bucket 200, gap of 200 > 60 => reset
	require.Equal(t, int64(0), tbl.Size())
	require.Equal(t, int64(1), tbl.currentBucketCount)
}

func TestWelford_MatchesBatchComputation(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 100, 0, 0}

	var w Welford
	for _, s := range samples {
		w.Append(s)
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var ss float64
	for _, s := range samples {
		ss += (s - mean) * (s - mean)
	}
	variance := ss / float64(len(samples)-1)

	assert.InDelta(t, mean, w.Mean(), 1e-9)
	assert.InDelta(t, variance, w.Variance(), 1e-9)
	assert.InDelta(t, math.Sqrt(variance), w.StdDev(), 1e-9)
}

func TestTimeBucketList_AnomalyAndCooldownShape(t *testing.T) {
	tbl := New(5)
	// Prime with quiet buckets alternating counts 2 and 1 (buckets 0..61,
	// 61 of them closed) so Size() > 60 and the running deviation is
	// non-zero; with identical counts the deviation would be 0 and any
	// non-empty bucket would exceed 5σ.
	for i := int64(0); i < 62; i++ {
		tbl.Append(i * 5)
		if i%2 == 0 {
			tbl.Append(i * 5)
		}
	}
	require.Greater(t, tbl.Size(), int64(60))
	require.False(t, tbl.CheckForAnomaly())

	// Inject 200 events into the next bucket.
	base := int64(62) * 5
	for i := 0; i < 200; i++ {
		tbl.Append(base)
	}
	// Still open; force a close by moving to the next bucket.
	tbl.Append(base + 5)
	require.True(t, tbl.CheckForAnomaly())
}
