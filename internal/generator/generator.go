// Package generator builds synthetic typing prompts and keystroke samples.
package generator

import (
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/verte-zerg/keyprint/internal/model"
)

const (
	defaultHoldMs         = 95.0
	defaultHoldJitterMs   = 12.0
	defaultFlightMs       = 110.0
	defaultFlightJitterMs = 30.0
	wrongKeyHoldMs        = 80.0
	backspaceHoldMs       = 70.0
	synthSource           = "synthetic"
)

// Generator produces randomized prompts and samples.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return NewWithSource(rand.NewSource(seed))
}

// NewWithSource wraps an explicit random source.
func NewWithSource(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// Phrase joins count words selected uniformly from words.
func (g *Generator) Phrase(words []string, count int) string {
	if len(words) == 0 || count <= 0 {
		return ""
	}
	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		result = append(result, words[g.rnd.Intn(len(words))])
	}
	return strings.Join(result, " ")
}

// Pick returns one entry of phrases at random.
func (g *Generator) Pick(phrases []string) string {
	if len(phrases) == 0 {
		return ""
	}
	return phrases[g.rnd.Intn(len(phrases))]
}

// SampleOptions shapes a synthetic typing attempt. Zero timing fields use defaults.
type SampleOptions struct {
	Text string
	// SpeedMultiplier divides every generated duration; 2.5 types 2.5x faster.
	SpeedMultiplier float64
	HoldMs          float64
	HoldJitterMs    float64
	FlightMs        float64
	FlightJitterMs  float64
	// Errors inserts a wrong keystroke before that many characters.
	Errors int
	// Backspaces inserts a Backspace keystroke at the same correction points.
	Backspaces int
	// HoldOverrides pins the hold time (ms, unscaled) of the character at an index.
	HoldOverrides map[int]float64
	IMEUsed       bool
	Source        string
}

func (o SampleOptions) withDefaults() SampleOptions {
	if o.SpeedMultiplier <= 0 {
		o.SpeedMultiplier = 1
	}
	if o.HoldMs <= 0 {
		o.HoldMs = defaultHoldMs
	}
	if o.HoldJitterMs < 0 {
		o.HoldJitterMs = 0
	} else if o.HoldJitterMs == 0 {
		o.HoldJitterMs = defaultHoldJitterMs
	}
	if o.FlightMs <= 0 {
		o.FlightMs = defaultFlightMs
	}
	if o.FlightJitterMs < 0 {
		o.FlightJitterMs = 0
	} else if o.FlightJitterMs == 0 {
		o.FlightJitterMs = defaultFlightJitterMs
	}
	if o.Source == "" {
		o.Source = synthSource
	}
	return o
}

// Sample types opts.Text once and returns the resulting event stream. Each
// key is released before the next one is pressed.
func (g *Generator) Sample(opts SampleOptions) model.KeystrokeSample {
	opts = opts.withDefaults()
	runes := []rune(opts.Text)
	corrections := g.correctionPoints(len(runes), max(opts.Errors, opts.Backspaces))

	var events []model.KeystrokeEvent
	t := 0.0
	press := func(key, code string, index *int, hold float64) {
		loc := 0
		events = append(events,
			model.KeystrokeEvent{Key: key, Code: code, Type: model.KeyDown, T: round(t), Location: &loc, ExpectedIndex: index},
			model.KeystrokeEvent{Key: key, Code: code, Type: model.KeyUp, T: round(t + hold), Location: &loc, ExpectedIndex: index},
		)
		t += hold + g.jitter(opts.FlightMs, opts.FlightJitterMs)/opts.SpeedMultiplier
	}

	for i, r := range runes {
		if ordinal, ok := corrections[i]; ok {
			if ordinal < opts.Errors {
				wrong := wrongRune(r)
				press(string(wrong), codeFor(wrong), nil, wrongKeyHoldMs/opts.SpeedMultiplier)
			}
			if ordinal < opts.Backspaces {
				press("Backspace", "Backspace", nil, backspaceHoldMs/opts.SpeedMultiplier)
			}
		}
		hold := g.jitter(opts.HoldMs, opts.HoldJitterMs) / opts.SpeedMultiplier
		if override, ok := opts.HoldOverrides[i]; ok {
			hold = override
		}
		idx := i
		press(string(r), codeFor(r), &idx, hold)
	}

	return model.KeystrokeSample{
		Events:         events,
		ExpectedText:   opts.Text,
		TypedLength:    len(runes),
		ErrorCount:     opts.Errors,
		BackspaceCount: opts.Backspaces,
		IMEUsed:        opts.IMEUsed,
		Source:         opts.Source,
	}
}

// correctionPoints picks n distinct character indices (never the first) and
// maps each to its ordinal in text order.
func (g *Generator) correctionPoints(length, n int) map[int]int {
	points := map[int]int{}
	if n <= 0 || length < 2 {
		return points
	}
	candidates := g.rnd.Perm(length - 1)
	if n > len(candidates) {
		n = len(candidates)
	}
	picked := make([]int, n)
	for i := 0; i < n; i++ {
		picked[i] = candidates[i] + 1
	}
	sort.Ints(picked)
	for ordinal, idx := range picked {
		points[idx] = ordinal
	}
	return points
}

func (g *Generator) jitter(base, spread float64) float64 {
	if spread <= 0 {
		return base
	}
	v := base + spread*(2*g.rnd.Float64()-1)
	if v < 1 {
		v = 1
	}
	return v
}

func round(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

func wrongRune(r rune) rune {
	if r == 'z' || r == 'Z' {
		return 'x'
	}
	if unicode.IsLetter(r) && r < unicode.MaxASCII {
		return r + 1
	}
	return 'q'
}

func codeFor(r rune) string {
	switch {
	case r == ' ':
		return "Space"
	case r >= 'a' && r <= 'z':
		return "Key" + string(unicode.ToUpper(r))
	case r >= 'A' && r <= 'Z':
		return "Key" + string(r)
	case r >= '0' && r <= '9':
		return "Digit" + string(r)
	case r == '.':
		return "Period"
	case r == ',':
		return "Comma"
	default:
		return ""
	}
}
