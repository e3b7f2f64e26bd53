// Package model defines shared data structures.
package model

import "time"

// KeyTransition is the edge of a key event.
type KeyTransition string

// Key transitions.
const (
	KeyDown KeyTransition = "down"
	KeyUp   KeyTransition = "up"
)

// KeystrokeEvent is a single key transition captured during a typing attempt.
type KeystrokeEvent struct {
	Key           string        `json:"key"`
	Code          string        `json:"code,omitempty"`
	Type          KeyTransition `json:"type"`
	T             float64       `json:"t"`
	Repeat        bool          `json:"repeat,omitempty"`
	Location      *int          `json:"location,omitempty"`
	ExpectedIndex *int          `json:"expectedIndex,omitempty"`
}

// KeystrokeSample is one typing attempt.
type KeystrokeSample struct {
	Events            []KeystrokeEvent `json:"events"`
	ExpectedText      string           `json:"expectedText,omitempty"`
	TypedLength       int              `json:"typedLength,omitempty"`
	ErrorCount        int              `json:"errorCount,omitempty"`
	BackspaceCount    int              `json:"backspaceCount,omitempty"`
	IgnoredEventCount int              `json:"ignoredEventCount,omitempty"`
	IMEUsed           bool             `json:"imeUsed,omitempty"`
	Source            string           `json:"source,omitempty"`
}

// TimingStats summarizes one timing family in milliseconds.
type TimingStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
}

// KeystrokeSampleMetrics is the derived summary of one sample.
type KeystrokeSampleMetrics struct {
	Hold   TimingStats `json:"hold"`
	Flight TimingStats `json:"flight"`
	DD     TimingStats `json:"dd"`
	UD     TimingStats `json:"ud"`
	UU     TimingStats `json:"uu"`

	TypingSpeed   float64 `json:"typingSpeed"`
	ErrorRate     float64 `json:"errorRate"`
	BackspaceRate float64 `json:"backspaceRate"`

	DigraphCount    int     `json:"digraphCount"`
	KeystrokeCount  int     `json:"keystrokeCount"`
	EventCount      int     `json:"eventCount"`
	TotalDurationMs float64 `json:"totalDurationMs"`
}

// KeystrokeProfile is the persistent per-user typing profile.
// DD, UD and UU are nil on profiles written before those families were tracked.
type KeystrokeProfile struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	SampleCount      int `json:"sampleCount"`
	SampleRoundCount int `json:"sampleRoundCount"`

	Hold   TimingStats  `json:"hold"`
	Flight TimingStats  `json:"flight"`
	DD     *TimingStats `json:"dd,omitempty"`
	UD     *TimingStats `json:"ud,omitempty"`
	UU     *TimingStats `json:"uu,omitempty"`

	TypingSpeedMean   float64 `json:"typingSpeedMean"`
	TypingSpeedStd    float64 `json:"typingSpeedStd"`
	ErrorRateMean     float64 `json:"errorRateMean"`
	BackspaceRateMean float64 `json:"backspaceRateMean"`
	DigraphCount      int     `json:"digraphCount"`
}

// Reason is a non-fatal diagnostic code attached to metrics and decisions.
type Reason string

// Reason codes.
const (
	ReasonOutlierTrimmed     Reason = "OUTLIER_TRIMMED"
	ReasonIMEComposition     Reason = "IME_COMPOSITION_DETECTED"
	ReasonInsufficientSample Reason = "INSUFFICIENT_SAMPLES"
	ReasonLowDigraphCoverage Reason = "LOW_DIGRAPH_COVERAGE"
	ReasonHighDistance       Reason = "HIGH_DISTANCE"
	ReasonLowSimilarity      Reason = "LOW_SIMILARITY"
	ReasonProfileMissing     Reason = "PROFILE_MISSING"
)

// Decision is the outcome of a verification.
type Decision string

// Decisions.
const (
	DecisionAllow  Decision = "allow"
	DecisionStepUp Decision = "step_up"
	DecisionDeny   Decision = "deny"
)

// Thresholds are resolved decision cut-offs on the similarity score.
type Thresholds struct {
	Allow  float64 `json:"allow"`
	StepUp float64 `json:"stepUp"`
	Deny   float64 `json:"deny"`
}

// EnrollmentTargets override readiness minimums. Zero values use defaults.
type EnrollmentTargets struct {
	MinRounds     int `json:"minRounds,omitempty" toml:"min-rounds" yaml:"min_rounds"`
	MinKeystrokes int `json:"minKeystrokes,omitempty" toml:"min-keystrokes" yaml:"min_keystrokes"`
	MinDigraphs   int `json:"minDigraphs,omitempty" toml:"min-digraphs" yaml:"min_digraphs"`
}

// Policy configures verification. Nil fields use defaults.
type Policy struct {
	AllowThreshold  *float64          `json:"allowThreshold,omitempty"`
	StepUpThreshold *float64          `json:"stepUpThreshold,omitempty"`
	DenyThreshold   *float64          `json:"denyThreshold,omitempty"`
	UpdateOnAllow   *bool             `json:"updateOnAllow,omitempty"`
	AdaptRate       *float64          `json:"adaptRate,omitempty"`
	Enrollment      EnrollmentTargets `json:"enrollment,omitempty"`
}

// EnrollmentProgress reports how far a profile is from its enrollment targets.
type EnrollmentProgress struct {
	RoundsCompleted     int  `json:"roundsCompleted"`
	RoundsTarget        int  `json:"roundsTarget"`
	RoundsRemaining     int  `json:"roundsRemaining"`
	KeystrokesCollected int  `json:"keystrokesCollected"`
	KeystrokesTarget    int  `json:"keystrokesTarget"`
	KeystrokesRemaining int  `json:"keystrokesRemaining"`
	Ready               bool `json:"ready"`
}

// Attempt is a recorded verification outcome.
type Attempt struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	At         time.Time `json:"at"`
	Decision   Decision  `json:"decision"`
	Similarity float64   `json:"similarity"`
	Distance   float64   `json:"distance"`
	Reasons    []Reason  `json:"reasons"`
}
