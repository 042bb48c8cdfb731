package analytics

// RunningMean accumulates a mean incrementally (Welford's update),
// without keeping the observations.
type RunningMean struct {
	count int
	mean  float64
}

// Add folds one observation into the mean
func (r *RunningMean) Add(v float64) {
	r.count++
	r.mean += (v - r.mean) / float64(r.count)
}

// Mean returns the current mean, 0 with no observations
func (r *RunningMean) Mean() float64 {
	return r.mean
}

// Count returns the number of observations
func (r *RunningMean) Count() int {
	return r.count
}

// MeanOf is a convenience over a slice of counts
func MeanOf(values []int) float64 {
	var r RunningMean
	for _, v := range values {
		r.Add(float64(v))
	}
	return r.Mean()
}
