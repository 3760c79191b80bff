package stats

import (
	"math"
	"sort"
)

// MeanStd returns the mean and population standard deviation of the data.
// Empty data returns zeros.
func MeanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	total := 0.0
	for _, value := range data {
		total += value
	}
	mean := total / float64(len(data))
	variance := 0.0
	for _, value := range data {
		variance += (value - mean) * (value - mean)
	}
	return mean, math.Sqrt(variance / float64(len(data)))
}

// Median returns the median of the data, averaging the middle pair for even
// lengths. Empty data returns the default.
func Median(data []float64, def float64) float64 {
	if len(data) == 0 {
		return def
	}
	ordered := append([]float64(nil), data...)
	sort.Float64s(ordered)
	mid := len(ordered) / 2
	if len(ordered)%2 == 1 {
		return ordered[mid]
	}
	return (ordered[mid-1] + ordered[mid]) / 2
}
