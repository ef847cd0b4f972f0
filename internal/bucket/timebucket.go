package bucket

// anomalyMultiplier is the fixed multiplier applied to the running
// standard deviation to decide whether a closed bucket is a surge.
const anomalyMultiplier = 5

// maxBucketGap is the largest bucket-index advance tolerated between two
// appends; a larger advance presumes the broadcaster's state stale (stream
// gone offline) and resets it.
const maxBucketGap = 60

// TimeBucketList tracks chat volume in fixed-width buckets for a single
// broadcaster and exposes the 5σ surge predicate over the closed-bucket
// history.
type TimeBucketList struct {
	bucketSizeSeconds int64
	maxGap            int64

	variance Welford

	started             bool
	currentBucket       int64
	currentBucketCount  int64
	lastClosedBucketCnt int64
}

// New creates a TimeBucketList with the given bucket width in seconds and
// the default 60-bucket staleness gap.
func New(bucketSizeSeconds int64) *TimeBucketList {
	return NewWithGap(bucketSizeSeconds, maxBucketGap)
}

// NewWithGap creates a TimeBucketList with an explicit staleness gap,
// letting callers override the default 60-bucket heuristic.
func NewWithGap(bucketSizeSeconds, gap int64) *TimeBucketList {
	return &TimeBucketList{bucketSizeSeconds: bucketSizeSeconds, maxGap: gap}
}

// reset clears all state, as if the TimeBucketList were freshly created.
// Triggered internally when the bucket gap exceeds maxGap (stream presumed
// offline).
func (t *TimeBucketList) reset() {
	t.variance = Welford{}
	t.started = false
	t.currentBucket = 0
	t.currentBucketCount = 0
	t.lastClosedBucketCnt = 0
}

// Append records one chat event at the given second-resolution timestamp.
func (t *TimeBucketList) Append(timestampSeconds int64) {
	bucket := timestampSeconds / t.bucketSizeSeconds

	if !t.started {
		t.currentBucket = bucket
		t.currentBucketCount = 1
		t.started = true
		return
	}

	if bucket-t.currentBucket > t.maxGap {
		t.reset()
		t.currentBucket = bucket
		t.currentBucketCount = 1
		t.started = true
		return
	}

	if bucket == t.currentBucket {
		t.currentBucketCount++
		return
	}

	// Crossing into a new bucket: every bucket strictly between the last
	// one we touched and the new one was silent, so it contributes a 0
	// sample.
	for b := t.currentBucket; b < bucket-1; b++ {
		t.variance.Append(0)
	}

	t.variance.Append(float64(t.currentBucketCount))
	t.lastClosedBucketCnt = t.currentBucketCount

	t.currentBucket = bucket
	t.currentBucketCount = 1
}

// Size returns the number of closed buckets folded into the running
// variance so far (the currently-open bucket is excluded).
func (t *TimeBucketList) Size() int64 {
	return t.variance.N()
}

// CheckForAnomaly reports whether the most recently closed bucket's count
// exceeds 5 standard deviations of the running variance.
func (t *TimeBucketList) CheckForAnomaly() bool {
	threshold := t.variance.StdDev() * anomalyMultiplier
	return float64(t.lastClosedBucketCnt) > threshold
}

// AppendAndCheck appends a timestamp and returns CheckForAnomaly for the
// most recently closed bucket, whether or not this append closed it.
func (t *TimeBucketList) AppendAndCheck(timestampSeconds int64) bool {
	t.Append(timestampSeconds)
	return t.CheckForAnomaly()
}

// LastClosedBucketCount returns the count recorded for the most recently
// closed bucket, primarily for logging/diagnostics.
func (t *TimeBucketList) LastClosedBucketCount() int64 {
	return t.lastClosedBucketCnt
}
