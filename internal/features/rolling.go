package features

import "math"

// Window describes a trailing window over the sequence index.
type Window struct {
	Size       int // number of rows, including the current one
	MinPeriods int // defined observations required to produce a value
}

// RollingStd computes the sample standard deviation (n-1 denominator) of the
// defined values in each trailing window. Nil entries are skipped, not counted.
// A window with fewer than MinPeriods defined values yields nil; it is never
// shortened and never coerced to zero.
func RollingStd(values []*float64, w Window) []*float64 {
	out := make([]*float64, len(values))
	if w.Size <= 0 {
		return out
	}

	minPeriods := w.MinPeriods
	if minPeriods < 2 {
		// Sample stddev is undefined for fewer than two observations.
		minPeriods = 2
	}

	window := make([]float64, 0, w.Size)
	for i := range values {
		start := i - w.Size + 1
		if start < 0 {
			start = 0
		}

		window = window[:0]
		for _, v := range values[start : i+1] {
			if v != nil && !math.IsNaN(*v) {
				window = append(window, *v)
			}
		}

		if len(window) < minPeriods {
			continue
		}
		sd := sampleStddev(window)
		out[i] = &sd
	}

	return out
}

// sampleStddev calculates sample standard deviation. len(xs) must be >= 2.
func sampleStddev(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
