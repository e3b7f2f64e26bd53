// Package auth exposes keystroke enrollment and verification.
//
// EnrollSample and VerifySample are pure and leave persistence to the caller.
// Service wraps them with profile storage, per-user serialization, attempt
// history, logging and metrics.
package auth

import (
	"time"

	"github.com/verte-zerg/keyprint/internal/enrollment"
	"github.com/verte-zerg/keyprint/internal/keystroke"
	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/profile"
	"github.com/verte-zerg/keyprint/internal/scoring"
)

// EnrollResult is the outcome of one enrollment round.
type EnrollResult struct {
	Profile  model.KeystrokeProfile       `json:"profile"`
	Metrics  model.KeystrokeSampleMetrics `json:"metrics"`
	Progress model.EnrollmentProgress     `json:"progress"`
	Reasons  []model.Reason               `json:"reasons"`
}

// VerifyResult is the outcome of one verification.
type VerifyResult struct {
	Similarity float64                      `json:"similarityScore"`
	Distance   float64                      `json:"distance"`
	Decision   model.Decision               `json:"decision"`
	Thresholds model.Thresholds             `json:"thresholds"`
	Metrics    model.KeystrokeSampleMetrics `json:"metrics"`
	Reasons    []model.Reason               `json:"reasons"`

	// ProfileUpdated is set by Service when an allow adapted the stored profile.
	ProfileUpdated bool   `json:"profileUpdated,omitempty"`
	AttemptID      string `json:"attemptId,omitempty"`
}

// EnrollSample extracts metrics from sample and merges them into prior, which
// may be nil for a first enrollment.
func EnrollSample(userID string, prior *model.KeystrokeProfile, sample model.KeystrokeSample, now time.Time, targets model.EnrollmentTargets) EnrollResult {
	m, reasons := keystroke.ComputeMetrics(sample)
	p := profile.Merge(userID, m, profile.SampleWeight(m), prior, now)
	readiness := enrollment.Evaluate(p, targets)
	return EnrollResult{
		Profile:  p,
		Metrics:  m,
		Progress: enrollment.Progress(p, targets),
		Reasons:  dedupeReasons(reasons, readiness.Reasons),
	}
}

// VerifySample scores sample against p. A nil profile yields step_up with
// PROFILE_MISSING and no scoring. An allow on a profile that is not ready is
// downgraded to step_up.
func VerifySample(sample model.KeystrokeSample, p *model.KeystrokeProfile, policy *model.Policy) VerifyResult {
	m, metricReasons := keystroke.ComputeMetrics(sample)
	th := scoring.ResolveThresholds(policy)
	if p == nil {
		return VerifyResult{
			Similarity: 0,
			Distance:   scoring.MaxDistance,
			Decision:   model.DecisionStepUp,
			Thresholds: th,
			Metrics:    m,
			Reasons:    []model.Reason{model.ReasonProfileMissing},
		}
	}

	res := scoring.Score(*p, m, policy)
	decision := res.Decision
	var readinessReasons []model.Reason
	if decision == model.DecisionAllow {
		var targets model.EnrollmentTargets
		if policy != nil {
			targets = policy.Enrollment
		}
		if r := enrollment.Evaluate(*p, targets); !r.OK {
			decision = model.DecisionStepUp
			readinessReasons = r.Reasons
		}
	}
	return VerifyResult{
		Similarity: res.Similarity,
		Distance:   res.Distance,
		Decision:   decision,
		Thresholds: res.Thresholds,
		Metrics:    m,
		Reasons:    dedupeReasons(metricReasons, res.Reasons, readinessReasons),
	}
}

// UpdateOnAllow reports whether an allow should adapt the profile (default true).
func UpdateOnAllow(policy *model.Policy) bool {
	if policy == nil || policy.UpdateOnAllow == nil {
		return true
	}
	return *policy.UpdateOnAllow
}

// AdaptRate returns the policy's exponential update rate, clamped.
func AdaptRate(policy *model.Policy) float64 {
	if policy == nil || policy.AdaptRate == nil {
		return profile.DefaultAdaptRate
	}
	return profile.ClampAdaptRate(*policy.AdaptRate)
}

func dedupeReasons(groups ...[]model.Reason) []model.Reason {
	seen := map[model.Reason]struct{}{}
	out := []model.Reason{}
	for _, group := range groups {
		for _, r := range group {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
