// Package profile builds and adapts per-user keystroke profiles.
//
// Enrollment rounds are merged by weight so every round counts in proportion
// to its keystrokes. After enrollment, accepted verifications nudge the
// profile with an exponential moving average so recent typing dominates.
package profile

import (
	"math"
	"time"

	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/stats"
)

// Adaptation rate bounds for Adapt.
const (
	DefaultAdaptRate = 0.08
	MinAdaptRate     = 0.01
	MaxAdaptRate     = 0.5
)

// SampleWeight returns the merge weight of a sample: its matched keystrokes, at least 1.
func SampleWeight(m model.KeystrokeSampleMetrics) int {
	if m.KeystrokeCount < 1 {
		return 1
	}
	return m.KeystrokeCount
}

// New initializes a profile from the first enrollment sample.
func New(userID string, m model.KeystrokeSampleMetrics, weight int, now time.Time) model.KeystrokeProfile {
	if weight < 1 {
		weight = 1
	}
	dd, ud, uu := m.DD, m.UD, m.UU
	return model.KeystrokeProfile{
		UserID:            userID,
		CreatedAt:         now,
		UpdatedAt:         now,
		SampleCount:       weight,
		SampleRoundCount:  1,
		Hold:              m.Hold,
		Flight:            m.Flight,
		DD:                &dd,
		UD:                &ud,
		UU:                &uu,
		TypingSpeedMean:   m.TypingSpeed,
		TypingSpeedStd:    0,
		ErrorRateMean:     m.ErrorRate,
		BackspaceRateMean: m.BackspaceRate,
		DigraphCount:      m.DigraphCount,
	}
}

// Merge folds an enrollment sample into existing, or creates a profile when
// existing is nil. The existing profile is not modified.
func Merge(userID string, m model.KeystrokeSampleMetrics, weight int, existing *model.KeystrokeProfile, now time.Time) model.KeystrokeProfile {
	if weight < 1 {
		weight = 1
	}
	if existing == nil {
		return New(userID, m, weight, now)
	}

	prev := *existing
	wa := float64(max(prev.SampleCount, 0))
	wb := float64(weight)

	mergeFamily := func(a, b model.TimingStats) model.TimingStats {
		mean, std := stats.PooledMerge(a.Mean, a.Std, wa, b.Mean, b.Std, wb)
		return model.TimingStats{
			Mean:   stats.Round3(mean),
			Std:    stats.Round3(std),
			Median: stats.Round3(stats.WeightedAverage(a.Median, wa, b.Median, wb)),
		}
	}

	dd := mergeFamily(familyOrFlight(prev.DD, prev.Flight), m.DD)
	ud := mergeFamily(familyOrFlight(prev.UD, prev.Flight), m.UD)
	uu := mergeFamily(familyOrFlight(prev.UU, prev.Flight), m.UU)
	speedMean, speedStd := stats.PooledMerge(prev.TypingSpeedMean, prev.TypingSpeedStd, wa, m.TypingSpeed, 0, wb)

	createdAt := prev.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if userID == "" {
		userID = prev.UserID
	}
	return model.KeystrokeProfile{
		UserID:            userID,
		CreatedAt:         createdAt,
		UpdatedAt:         now,
		SampleCount:       prev.SampleCount + weight,
		SampleRoundCount:  max(prev.SampleRoundCount, 1) + 1,
		Hold:              mergeFamily(prev.Hold, m.Hold),
		Flight:            mergeFamily(prev.Flight, m.Flight),
		DD:                &dd,
		UD:                &ud,
		UU:                &uu,
		TypingSpeedMean:   stats.Round3(speedMean),
		TypingSpeedStd:    stats.Round3(speedStd),
		ErrorRateMean:     stats.Round3(stats.WeightedAverage(prev.ErrorRateMean, wa, m.ErrorRate, wb)),
		BackspaceRateMean: stats.Round3(stats.WeightedAverage(prev.BackspaceRateMean, wa, m.BackspaceRate, wb)),
		DigraphCount:      prev.DigraphCount + m.DigraphCount,
	}
}

// ClampAdaptRate bounds alpha to [MinAdaptRate, MaxAdaptRate]. Non-finite
// values fall back to DefaultAdaptRate.
func ClampAdaptRate(alpha float64) float64 {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return DefaultAdaptRate
	}
	return stats.Clamp(alpha, MinAdaptRate, MaxAdaptRate)
}

// Adapt applies an exponential update from an accepted verification sample.
// The existing profile is not modified.
func Adapt(existing model.KeystrokeProfile, m model.KeystrokeSampleMetrics, alpha float64, now time.Time) model.KeystrokeProfile {
	alpha = ClampAdaptRate(alpha)

	adaptFamily := func(a, b model.TimingStats) model.TimingStats {
		mean, std := stats.ExponentialUpdate(a.Mean, a.Std, b.Mean, alpha)
		median := a.Median + alpha*(b.Median-a.Median)
		return model.TimingStats{
			Mean:   stats.Round3(mean),
			Std:    stats.Round3(std),
			Median: stats.Round3(median),
		}
	}
	ema := func(mean, sample float64) float64 {
		return stats.Round3(mean + alpha*(sample-mean))
	}

	dd := adaptFamily(familyOrFlight(existing.DD, existing.Flight), m.DD)
	ud := adaptFamily(familyOrFlight(existing.UD, existing.Flight), m.UD)
	uu := adaptFamily(familyOrFlight(existing.UU, existing.Flight), m.UU)
	speedMean, speedStd := stats.ExponentialUpdate(existing.TypingSpeedMean, existing.TypingSpeedStd, m.TypingSpeed, alpha)

	next := existing
	next.UpdatedAt = now
	next.SampleRoundCount = existing.SampleRoundCount + 1
	next.SampleCount = existing.SampleCount + SampleWeight(m)
	next.Hold = adaptFamily(existing.Hold, m.Hold)
	next.Flight = adaptFamily(existing.Flight, m.Flight)
	next.DD = &dd
	next.UD = &ud
	next.UU = &uu
	next.TypingSpeedMean = stats.Round3(speedMean)
	next.TypingSpeedStd = stats.Round3(speedStd)
	next.ErrorRateMean = ema(existing.ErrorRateMean, m.ErrorRate)
	next.BackspaceRateMean = ema(existing.BackspaceRateMean, m.BackspaceRate)
	next.DigraphCount = existing.DigraphCount + m.DigraphCount
	return next
}

// Family returns a digraph family of p, falling back to the flight stats when
// the profile predates per-family tracking.
func Family(stored *model.TimingStats, p model.KeystrokeProfile) model.TimingStats {
	return familyOrFlight(stored, p.Flight)
}

func familyOrFlight(stored *model.TimingStats, flight model.TimingStats) model.TimingStats {
	if stored == nil {
		return flight
	}
	return *stored
}
