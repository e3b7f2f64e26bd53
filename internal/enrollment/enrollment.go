// Package enrollment decides when a keystroke profile can back verification decisions.
package enrollment

import "github.com/verte-zerg/keyprint/internal/model"

// Default readiness targets.
const (
	DefaultMinRounds     = 8
	DefaultMinKeystrokes = 120
	DefaultMinDigraphs   = 40
)

// Readiness is the outcome of Evaluate.
type Readiness struct {
	OK      bool
	Reasons []model.Reason
}

// Resolve fills zero or negative targets with defaults.
func Resolve(t model.EnrollmentTargets) model.EnrollmentTargets {
	if t.MinRounds <= 0 {
		t.MinRounds = DefaultMinRounds
	}
	if t.MinKeystrokes <= 0 {
		t.MinKeystrokes = DefaultMinKeystrokes
	}
	if t.MinDigraphs <= 0 {
		t.MinDigraphs = DefaultMinDigraphs
	}
	return t
}

// Rounds infers the completed enrollment rounds of a profile.
func Rounds(p model.KeystrokeProfile) int {
	if p.SampleRoundCount > 0 {
		return p.SampleRoundCount
	}
	if p.SampleCount > 0 {
		return 1
	}
	return 0
}

// Evaluate checks a profile against readiness targets. Meeting either the
// rounds or the keystrokes target is enough for volume; digraph coverage is
// always required.
func Evaluate(p model.KeystrokeProfile, targets model.EnrollmentTargets) Readiness {
	t := Resolve(targets)
	var reasons []model.Reason
	if Rounds(p) < t.MinRounds && p.SampleCount < t.MinKeystrokes {
		reasons = append(reasons, model.ReasonInsufficientSample)
	}
	if p.DigraphCount < t.MinDigraphs {
		reasons = append(reasons, model.ReasonLowDigraphCoverage)
	}
	return Readiness{OK: len(reasons) == 0, Reasons: reasons}
}

// Progress reports completed, target and remaining rounds and keystrokes.
func Progress(p model.KeystrokeProfile, targets model.EnrollmentTargets) model.EnrollmentProgress {
	t := Resolve(targets)
	rounds := Rounds(p)
	pr := model.EnrollmentProgress{
		RoundsCompleted:     rounds,
		RoundsTarget:        t.MinRounds,
		RoundsRemaining:     max(t.MinRounds-rounds, 0),
		KeystrokesCollected: p.SampleCount,
		KeystrokesTarget:    t.MinKeystrokes,
		KeystrokesRemaining: max(t.MinKeystrokes-p.SampleCount, 0),
	}
	pr.Ready = pr.RoundsRemaining == 0 || pr.KeystrokesRemaining == 0
	return pr
}
