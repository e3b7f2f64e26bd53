package profile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/model"
)

var (
	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func sampleMetrics() model.KeystrokeSampleMetrics {
	return model.KeystrokeSampleMetrics{
		Hold:           model.TimingStats{Mean: 100, Std: 10, Median: 98},
		Flight:         model.TimingStats{Mean: 120, Std: 20, Median: 115},
		DD:             model.TimingStats{Mean: 220, Std: 25, Median: 210},
		UD:             model.TimingStats{Mean: 120, Std: 20, Median: 115},
		UU:             model.TimingStats{Mean: 221, Std: 24, Median: 211},
		TypingSpeed:    4.5,
		ErrorRate:      0.1,
		BackspaceRate:  0.05,
		DigraphCount:   29,
		KeystrokeCount: 30,
	}
}

func TestSampleWeight(t *testing.T) {
	assert.Equal(t, 1, SampleWeight(model.KeystrokeSampleMetrics{}))
	assert.Equal(t, 30, SampleWeight(sampleMetrics()))
}

func TestNewProfile(t *testing.T) {
	p := New("alice", sampleMetrics(), 30, t0)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, t0, p.CreatedAt)
	assert.Equal(t, 30, p.SampleCount)
	assert.Equal(t, 1, p.SampleRoundCount)
	require.NotNil(t, p.DD)
	assert.Equal(t, 220.0, p.DD.Mean)
	assert.Equal(t, 0.0, p.TypingSpeedStd)
	assert.Equal(t, 29, p.DigraphCount)
}

func TestMergeNilIsNew(t *testing.T) {
	assert.Equal(t, New("alice", sampleMetrics(), 30, t0), Merge("alice", sampleMetrics(), 30, nil, t0))
}

func TestMergeSelfKeepsStats(t *testing.T) {
	m := sampleMetrics()
	p := New("alice", m, 30, t0)
	merged := Merge("alice", m, 30, &p, t1)

	assert.Equal(t, p.Hold, merged.Hold)
	assert.Equal(t, p.Flight, merged.Flight)
	assert.Equal(t, *p.DD, *merged.DD)
	assert.Equal(t, 60, merged.SampleCount)
	assert.Equal(t, 2, merged.SampleRoundCount)
	assert.Equal(t, 58, merged.DigraphCount)
	assert.Equal(t, t0, merged.CreatedAt)
	assert.Equal(t, t1, merged.UpdatedAt)
	assert.Equal(t, 4.5, merged.TypingSpeedMean)
	assert.Equal(t, 0.0, merged.TypingSpeedStd)

	// The input profile is not modified.
	assert.Equal(t, 1, p.SampleRoundCount)
}

func TestMergePooledVariance(t *testing.T) {
	a := sampleMetrics()
	b := sampleMetrics()
	b.Hold = model.TimingStats{Mean: 120, Std: 10, Median: 118}
	b.TypingSpeed = 5.5

	p := New("alice", a, 10, t0)
	merged := Merge("alice", b, 10, &p, t1)

	assert.Equal(t, 110.0, merged.Hold.Mean)
	assert.InDelta(t, math.Sqrt(200), merged.Hold.Std, 0.001)
	assert.Equal(t, 108.0, merged.Hold.Median)
	assert.Equal(t, 5.0, merged.TypingSpeedMean)
	assert.Equal(t, 0.5, merged.TypingSpeedStd)
}

func TestMergeLegacyProfileUsesFlight(t *testing.T) {
	legacy := model.KeystrokeProfile{
		UserID:           "bob",
		SampleCount:      30,
		SampleRoundCount: 0,
		Hold:             model.TimingStats{Mean: 100, Std: 10, Median: 100},
		Flight:           model.TimingStats{Mean: 220, Std: 25, Median: 210},
	}
	merged := Merge("", sampleMetrics(), 30, &legacy, t1)
	assert.Equal(t, "bob", merged.UserID)
	assert.Equal(t, 2, merged.SampleRoundCount)
	assert.Equal(t, t1, merged.CreatedAt)
	require.NotNil(t, merged.DD)
	assert.Equal(t, 220.0, merged.DD.Mean)
	require.NotNil(t, merged.UU)
}

func TestClampAdaptRate(t *testing.T) {
	assert.Equal(t, DefaultAdaptRate, ClampAdaptRate(math.NaN()))
	assert.Equal(t, DefaultAdaptRate, ClampAdaptRate(math.Inf(1)))
	assert.Equal(t, DefaultAdaptRate, ClampAdaptRate(math.Inf(-1)))
	assert.Equal(t, MinAdaptRate, ClampAdaptRate(0))
	assert.Equal(t, MinAdaptRate, ClampAdaptRate(-0.2))
	assert.Equal(t, MinAdaptRate, ClampAdaptRate(0.001))
	assert.Equal(t, MaxAdaptRate, ClampAdaptRate(0.9))
	assert.Equal(t, 0.2, ClampAdaptRate(0.2))
}

func TestAdapt(t *testing.T) {
	p := New("alice", sampleMetrics(), 30, t0)
	m := sampleMetrics()
	m.Hold.Mean = 200
	m.Hold.Median = 198
	m.ErrorRate = 0.2

	next := Adapt(p, m, 0.1, t1)
	assert.Equal(t, 110.0, next.Hold.Mean)
	assert.InDelta(t, math.Sqrt(0.9*100+0.09*10000), next.Hold.Std, 0.001)
	assert.Equal(t, 108.0, next.Hold.Median)
	assert.Equal(t, 0.11, next.ErrorRateMean)
	assert.Equal(t, 2, next.SampleRoundCount)
	assert.Equal(t, 60, next.SampleCount)
	assert.Equal(t, 58, next.DigraphCount)
	assert.Equal(t, t1, next.UpdatedAt)
	assert.Equal(t, t0, next.CreatedAt)

	// Previous profile values are untouched.
	assert.Equal(t, 100.0, p.Hold.Mean)
	assert.Equal(t, 220.0, p.DD.Mean)
}

func TestAdaptClampsRate(t *testing.T) {
	p := New("alice", sampleMetrics(), 30, t0)
	m := sampleMetrics()
	m.Hold.Mean = 300
	next := Adapt(p, m, 5, t1)
	assert.Equal(t, 200.0, next.Hold.Mean, "rate is capped at 0.5")
}

func TestFamily(t *testing.T) {
	p := model.KeystrokeProfile{Flight: model.TimingStats{Mean: 1}}
	assert.Equal(t, p.Flight, Family(nil, p))
	dd := model.TimingStats{Mean: 2}
	assert.Equal(t, dd, Family(&dd, p))
}
