// Package stats contains robust statistics helpers and report rendering.
package stats

import (
	"math"
	"sort"

	"github.com/verte-zerg/keyprint/internal/model"
)

const (
	trimMinCount   = 10
	trimLowerPct   = 0.05
	trimUpperPct   = 0.95
	trimMinKeep    = 3
	roundingFactor = 1000.0
)

// Usable reports whether v is a finite, non-negative measurement.
func Usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Round3 rounds to three decimal places.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Round(v*roundingFactor) / roundingFactor
	if r == 0 {
		// Normalize -0.
		return 0
	}
	return r
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStd returns the population standard deviation around mean.
// Fewer than two values yield 0.
func PopulationStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var acc float64
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

// Median returns the middle value (mean of the two middle values for even lengths).
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// TrimOutliers keeps the central 5th–95th percentile band (by rank) of a
// series with at least ten values. The result is sorted ascending. When the
// band would hold fewer than three values the untrimmed series is returned.
func TrimOutliers(values []float64) ([]float64, bool) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n < trimMinCount {
		return sorted, false
	}
	lower := int(math.Floor(float64(n) * trimLowerPct))
	upper := int(math.Ceil(float64(n) * trimUpperPct))
	if upper > n {
		upper = n
	}
	if upper-lower < trimMinKeep {
		return sorted, false
	}
	kept := sorted[lower:upper]
	return kept, len(kept) < n
}

// Summarize reduces a series to rounded mean, population std and median.
func Summarize(values []float64) model.TimingStats {
	if len(values) == 0 {
		return model.TimingStats{}
	}
	mean := Mean(values)
	return model.TimingStats{
		Mean:   Round3(mean),
		Std:    Round3(PopulationStd(values, mean)),
		Median: Round3(Median(values)),
	}
}

// WeightedAverage combines two values by weight. Non-positive total weight returns a.
func WeightedAverage(a, wa, b, wb float64) float64 {
	total := wa + wb
	if total <= 0 {
		return a
	}
	return (a*wa + b*wb) / total
}

// PooledMerge combines the mean and standard deviation of two weighted groups.
// Each group's variance contributes together with its squared offset from the
// combined mean.
func PooledMerge(meanA, stdA, wa, meanB, stdB, wb float64) (mean, std float64) {
	total := wa + wb
	if total <= 0 {
		return meanA, stdA
	}
	mean = (meanA*wa + meanB*wb) / total
	da := meanA - mean
	db := meanB - mean
	variance := (wa*(stdA*stdA+da*da) + wb*(stdB*stdB+db*db)) / total
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// ExponentialUpdate moves mean toward sample by alpha and tracks variance as
// an exponential moving average of squared deviations from the old mean.
func ExponentialUpdate(mean, std, sample, alpha float64) (newMean, newStd float64) {
	delta := sample - mean
	newMean = mean + alpha*delta
	variance := (1-alpha)*std*std + alpha*delta*delta
	if variance < 0 {
		variance = 0
	}
	return newMean, math.Sqrt(variance)
}
