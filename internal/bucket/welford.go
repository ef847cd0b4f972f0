// Package bucket implements the fixed-width time bucketing and online
// anomaly predicate used by the anomaly detector. The running-variance math
// follows Welford's method, the same derivation the original service cited
// from https://www.johndcook.com/blog/standard_deviation/.
package bucket

import "math"

// Welford computes a numerically-stable running mean and variance over a
// stream of samples, one sample (one closed bucket's count) at a time.
type Welford struct {
	n    int64
	mean float64
	m2   float64
}

// Append folds one more sample into the running statistics.
func (w *Welford) Append(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

// N returns the number of samples folded in so far.
func (w *Welford) N() int64 { return w.n }

// Mean returns the running mean, 0 if no samples have been appended.
func (w *Welford) Mean() float64 { return w.mean }

// Variance returns the sample variance, 0 if fewer than two samples have
// been appended.
func (w *Welford) Variance() float64 {
	if w.n < 2 {
		return 0
	}
	return w.m2 / float64(w.n-1)
}

// StdDev returns the sample standard deviation.
func (w *Welford) StdDev() float64 {
	return math.Sqrt(w.Variance())
}
