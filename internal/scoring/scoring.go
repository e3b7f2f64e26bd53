// Package scoring compares a live sample against a stored keystroke profile.
package scoring

import (
	"math"

	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/profile"
	"github.com/verte-zerg/keyprint/internal/stats"
)

// Default thresholds and bounds.
const (
	DefaultAllowThreshold  = 0.76
	DefaultStepUpThreshold = 0.56
	DefaultDenyThreshold   = 0.36
	MinAllowThreshold      = 0.1
	MaxThreshold           = 0.99

	// MaxDistance is reported when no feature can be compared.
	MaxDistance = 10.0

	similarityDecay   = 0.9
	highDistance      = 2.2
	minUsableFeatures = 3
	timingMinStdMs    = 8.0
	speedMinStd       = 0.3
	rateMinStd        = 0.05
)

// Feature is one weighted comparison between sample and profile.
type Feature struct {
	Name   string
	Weight float64
	MinStd float64
	Sample float64
	Mean   float64
	Std    float64
}

// Result is the scorer output.
type Result struct {
	Similarity     float64
	Distance       float64
	Decision       model.Decision
	Thresholds     model.Thresholds
	UsableFeatures int
	Reasons        []model.Reason
}

// Features lists the weighted features compared by Score.
func Features(p model.KeystrokeProfile, m model.KeystrokeSampleMetrics) []Feature {
	dd := profile.Family(p.DD, p)
	ud := profile.Family(p.UD, p)
	uu := profile.Family(p.UU, p)
	return []Feature{
		{Name: "hold", Weight: 1.2, MinStd: timingMinStdMs, Sample: m.Hold.Mean, Mean: p.Hold.Mean, Std: p.Hold.Std},
		{Name: "flight", Weight: 1.0, MinStd: timingMinStdMs, Sample: m.Flight.Mean, Mean: p.Flight.Mean, Std: p.Flight.Std},
		{Name: "dd", Weight: 0.8, MinStd: timingMinStdMs, Sample: m.DD.Mean, Mean: dd.Mean, Std: dd.Std},
		{Name: "ud", Weight: 1.0, MinStd: timingMinStdMs, Sample: m.UD.Mean, Mean: ud.Mean, Std: ud.Std},
		{Name: "uu", Weight: 0.6, MinStd: timingMinStdMs, Sample: m.UU.Mean, Mean: uu.Mean, Std: uu.Std},
		{Name: "typingSpeed", Weight: 0.5, MinStd: speedMinStd, Sample: m.TypingSpeed, Mean: p.TypingSpeedMean, Std: p.TypingSpeedStd},
		{Name: "errorRate", Weight: 0.5, MinStd: rateMinStd, Sample: m.ErrorRate, Mean: p.ErrorRateMean},
		{Name: "backspaceRate", Weight: 0.4, MinStd: rateMinStd, Sample: m.BackspaceRate, Mean: p.BackspaceRateMean},
	}
}

// Distance returns the weighted root-mean-square of standardized deviations
// and the number of usable features. With no usable feature it returns MaxDistance.
func Distance(features []Feature) (float64, int) {
	var sum, weights float64
	usable := 0
	for _, f := range features {
		if !stats.Usable(f.Sample) || !stats.Usable(f.Mean) {
			continue
		}
		std := f.Std
		if !stats.Usable(std) || std < f.MinStd {
			std = f.MinStd
		}
		z := (f.Sample - f.Mean) / std
		sum += z * z * f.Weight
		weights += f.Weight
		usable++
	}
	if usable == 0 || weights == 0 {
		return MaxDistance, 0
	}
	return math.Sqrt(sum / weights), usable
}

// Similarity maps a distance onto [0, 1], decaying exponentially.
func Similarity(distance float64) float64 {
	return stats.Clamp(math.Exp(-similarityDecay*distance), 0, 1)
}

// ResolveThresholds applies policy overrides and clamps them so that
// 0 <= deny <= stepUp <= allow <= 0.99. Step-up is clamped against the
// resolved allow and deny against the resolved step-up, in that order.
func ResolveThresholds(policy *model.Policy) model.Thresholds {
	allow := DefaultAllowThreshold
	stepUp := DefaultStepUpThreshold
	deny := DefaultDenyThreshold
	if policy != nil {
		allow = override(policy.AllowThreshold, allow)
		stepUp = override(policy.StepUpThreshold, stepUp)
		deny = override(policy.DenyThreshold, deny)
	}
	allow = stats.Clamp(allow, MinAllowThreshold, MaxThreshold)
	stepUp = stats.Clamp(stepUp, 0, allow)
	deny = stats.Clamp(deny, 0, stepUp)
	return model.Thresholds{Allow: allow, StepUp: stepUp, Deny: deny}
}

func override(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	return *v
}

// Decide classifies a similarity score against thresholds.
func Decide(similarity float64, th model.Thresholds) model.Decision {
	switch {
	case similarity >= th.Allow:
		return model.DecisionAllow
	case similarity < th.Deny:
		return model.DecisionDeny
	default:
		return model.DecisionStepUp
	}
}

// Score compares sample metrics with a profile and classifies the result.
func Score(p model.KeystrokeProfile, m model.KeystrokeSampleMetrics, policy *model.Policy) Result {
	distance, usable := Distance(Features(p, m))
	distance = stats.Round3(distance)
	similarity := stats.Round3(Similarity(distance))
	th := ResolveThresholds(policy)

	var reasons []model.Reason
	if usable < minUsableFeatures {
		reasons = append(reasons, model.ReasonInsufficientSample)
	}
	if distance > highDistance {
		reasons = append(reasons, model.ReasonHighDistance)
	}
	if similarity < th.StepUp {
		reasons = append(reasons, model.ReasonLowSimilarity)
	}
	return Result{
		Similarity:     similarity,
		Distance:       distance,
		Decision:       Decide(similarity, th),
		Thresholds:     th,
		UsableFeatures: usable,
		Reasons:        reasons,
	}
}
