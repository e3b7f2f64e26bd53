package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/generator"
	"github.com/verte-zerg/keyprint/internal/model"
)

const enrollText = "the quick brown fox jumps over"

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func enrollSample() model.KeystrokeSample {
	return generator.NewSeeded(7).Sample(generator.SampleOptions{Text: enrollText})
}

func enrolledProfile(t *testing.T, rounds int) *model.KeystrokeProfile {
	t.Helper()
	var p *model.KeystrokeProfile
	sample := enrollSample()
	for i := 0; i < rounds; i++ {
		res := EnrollSample("alice", p, sample, now, model.EnrollmentTargets{})
		p = &res.Profile
	}
	return p
}

func boolPtr(v bool) *bool { return &v }

func TestEnrollSampleProgress(t *testing.T) {
	first := EnrollSample("alice", nil, enrollSample(), now, model.EnrollmentTargets{})
	assert.Equal(t, 1, first.Progress.RoundsCompleted)
	assert.Equal(t, 30, first.Progress.KeystrokesCollected)
	assert.False(t, first.Progress.Ready)
	// Thirty holds always lose their extremes to trimming.
	assert.Equal(t, []model.Reason{
		model.ReasonOutlierTrimmed, model.ReasonInsufficientSample, model.ReasonLowDigraphCoverage,
	}, first.Reasons)

	p := enrolledProfile(t, 8)
	assert.Equal(t, 8, p.SampleRoundCount)
	assert.Equal(t, 240, p.SampleCount)
	assert.Equal(t, 232, p.DigraphCount)

	next := EnrollSample("alice", p, enrollSample(), now, model.EnrollmentTargets{})
	assert.True(t, next.Progress.Ready)
	assert.Equal(t, []model.Reason{model.ReasonOutlierTrimmed}, next.Reasons)
}

func TestVerifyIdenticalSampleAllows(t *testing.T) {
	p := enrolledProfile(t, 10)
	res := VerifySample(enrollSample(), p, nil)
	assert.Equal(t, model.DecisionAllow, res.Decision)
	assert.Equal(t, 1.0, res.Similarity)
	assert.Equal(t, 0.0, res.Distance)
	assert.Equal(t, []model.Reason{model.ReasonOutlierTrimmed}, res.Reasons)
	assert.Equal(t, model.Thresholds{Allow: 0.76, StepUp: 0.56, Deny: 0.36}, res.Thresholds)
}

func TestVerifyImpostorDenied(t *testing.T) {
	p := enrolledProfile(t, 10)
	impostor := generator.NewSeeded(7).Sample(generator.SampleOptions{
		Text:            enrollText,
		SpeedMultiplier: 2.5,
		Errors:          6,
		Backspaces:      5,
	})
	res := VerifySample(impostor, p, nil)
	assert.Equal(t, model.DecisionDeny, res.Decision)
	assert.Contains(t, res.Reasons, model.ReasonLowSimilarity)
	assert.Contains(t, res.Reasons, model.ReasonHighDistance)
	assert.Less(t, res.Similarity, 0.36)
}

func TestVerifyMissingProfile(t *testing.T) {
	res := VerifySample(enrollSample(), nil, nil)
	assert.Equal(t, model.DecisionStepUp, res.Decision)
	assert.Equal(t, 0.0, res.Similarity)
	assert.Equal(t, 10.0, res.Distance)
	assert.Equal(t, []model.Reason{model.ReasonProfileMissing}, res.Reasons)
	assert.Equal(t, 30, res.Metrics.KeystrokeCount)
}

func TestVerifyUnreadyProfileStepsUp(t *testing.T) {
	p := enrolledProfile(t, 1)
	res := VerifySample(enrollSample(), p, nil)
	assert.Equal(t, model.DecisionStepUp, res.Decision)
	assert.Equal(t, 1.0, res.Similarity)
	assert.Equal(t, []model.Reason{
		model.ReasonOutlierTrimmed, model.ReasonInsufficientSample, model.ReasonLowDigraphCoverage,
	}, res.Reasons)

	relaxed := &model.Policy{Enrollment: model.EnrollmentTargets{MinRounds: 1, MinDigraphs: 10}}
	res = VerifySample(enrollSample(), p, relaxed)
	assert.Equal(t, model.DecisionAllow, res.Decision)
}

func TestVerifyReasonsAreDeduplicated(t *testing.T) {
	// Two keystrokes matching an unready profile: the sample and the readiness
	// check report the same shortfalls.
	short := model.KeystrokeSample{Events: []model.KeystrokeEvent{
		{Key: "a", Type: model.KeyDown, T: 0}, {Key: "a", Type: model.KeyUp, T: 90},
		{Key: "b", Type: model.KeyDown, T: 200}, {Key: "b", Type: model.KeyUp, T: 290},
	}}
	family := &model.TimingStats{Mean: 200, Median: 200}
	p := &model.KeystrokeProfile{
		SampleCount: 2, SampleRoundCount: 1,
		Hold:            model.TimingStats{Mean: 90, Median: 90},
		Flight:          model.TimingStats{Mean: 110, Median: 110},
		DD:              family,
		UU:              family,
		TypingSpeedMean: 6.897,
	}
	res := VerifySample(short, p, nil)
	assert.Equal(t, model.DecisionStepUp, res.Decision)
	assert.Equal(t, 1.0, res.Similarity)
	assert.Equal(t, []model.Reason{model.ReasonInsufficientSample, model.ReasonLowDigraphCoverage}, res.Reasons)
}

func TestUpdateOnAllowAndAdaptRate(t *testing.T) {
	assert.True(t, UpdateOnAllow(nil))
	assert.True(t, UpdateOnAllow(&model.Policy{}))
	assert.False(t, UpdateOnAllow(&model.Policy{UpdateOnAllow: boolPtr(false)}))

	assert.Equal(t, 0.08, AdaptRate(nil))
	rate := 0.9
	assert.Equal(t, 0.5, AdaptRate(&model.Policy{AdaptRate: &rate}))
	zero := 0.0
	assert.Equal(t, 0.01, AdaptRate(&model.Policy{AdaptRate: &zero}), "an explicit zero is clamped, not defaulted")
}

func TestDedupeReasons(t *testing.T) {
	got := dedupeReasons(
		[]model.Reason{model.ReasonOutlierTrimmed, model.ReasonLowDigraphCoverage},
		nil,
		[]model.Reason{model.ReasonLowDigraphCoverage, model.ReasonHighDistance},
	)
	require.Equal(t, []model.Reason{
		model.ReasonOutlierTrimmed, model.ReasonLowDigraphCoverage, model.ReasonHighDistance,
	}, got)
	assert.NotNil(t, dedupeReasons())
}
