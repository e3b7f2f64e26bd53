package keystroke

import (
	"sort"
	"unicode/utf8"

	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/stats"
)

const (
	minPairs    = 3
	minDigraphs = 2
)

// Series holds the raw duration series of one sample, in milliseconds.
type Series struct {
	Hold []float64
	DD   []float64
	UD   []float64
	UU   []float64
}

// BuildSeries derives hold and digraph durations from pairs ordered by press
// time. Negative durations (overlapping keys) are dropped.
func BuildSeries(pairs []Pair) Series {
	var s Series
	for i, p := range pairs {
		if h := p.Hold(); h >= 0 {
			s.Hold = append(s.Hold, h)
		}
		if i == 0 {
			continue
		}
		prev := pairs[i-1]
		if dd := p.Down - prev.Down; dd >= 0 {
			s.DD = append(s.DD, dd)
		}
		if ud := p.Down - prev.Up; ud >= 0 {
			s.UD = append(s.UD, ud)
		}
	}

	byUp := make([]Pair, len(pairs))
	copy(byUp, pairs)
	sort.SliceStable(byUp, func(i, j int) bool {
		return byUp[i].Up < byUp[j].Up
	})
	for i := 1; i < len(byUp); i++ {
		if uu := byUp[i].Up - byUp[i-1].Up; uu >= 0 {
			s.UU = append(s.UU, uu)
		}
	}
	return s
}

// ExtractSeries normalizes and pairs the sample's events and returns the raw series.
func ExtractSeries(sample model.KeystrokeSample) Series {
	return BuildSeries(PairEvents(Normalize(sample.Events)))
}

// ComputeMetrics reduces a sample to outlier-trimmed timing statistics plus
// non-fatal quality reasons. It is deterministic and never fails: partial or
// empty input produces zero metrics and explanatory reasons.
func ComputeMetrics(sample model.KeystrokeSample) (model.KeystrokeSampleMetrics, []model.Reason) {
	events := Normalize(sample.Events)
	pairs := PairEvents(events)
	series := BuildSeries(pairs)

	trimmedAny := false
	summarize := func(values []float64) model.TimingStats {
		kept, trimmed := stats.TrimOutliers(values)
		if trimmed {
			trimmedAny = true
		}
		return stats.Summarize(kept)
	}

	hold := summarize(series.Hold)
	dd := summarize(series.DD)
	ud := summarize(series.UD)
	uu := summarize(series.UU)

	flight := ud
	if len(series.UD) == 0 {
		flight = dd
	}

	durationMs := 0.0
	if len(events) >= 2 {
		durationMs = events[len(events)-1].T - events[0].T
		if durationMs < 0 {
			durationMs = 0
		}
	}

	typed := typedLength(sample, len(pairs))
	speed := 0.0
	if durationMs > 0 {
		speed = float64(typed) / (durationMs / 1000)
	}

	m := model.KeystrokeSampleMetrics{
		Hold:            hold,
		Flight:          flight,
		DD:              dd,
		UD:              ud,
		UU:              uu,
		TypingSpeed:     stats.Round3(speed),
		ErrorRate:       stats.Round3(rate(sample.ErrorCount, typed)),
		BackspaceRate:   stats.Round3(rate(sample.BackspaceCount, typed)),
		DigraphCount:    len(series.DD),
		KeystrokeCount:  len(pairs),
		EventCount:      len(events),
		TotalDurationMs: stats.Round3(durationMs),
	}

	var reasons []model.Reason
	if trimmedAny {
		reasons = append(reasons, model.ReasonOutlierTrimmed)
	}
	if sample.IMEUsed {
		reasons = append(reasons, model.ReasonIMEComposition)
	}
	if len(pairs) < minPairs {
		reasons = append(reasons, model.ReasonInsufficientSample)
	}
	if len(series.DD) < minDigraphs || len(series.UD) < minDigraphs {
		reasons = append(reasons, model.ReasonLowDigraphCoverage)
	}
	return m, reasons
}

func typedLength(sample model.KeystrokeSample, pairCount int) int {
	if sample.TypedLength > 0 {
		return sample.TypedLength
	}
	if n := utf8.RuneCountInString(sample.ExpectedText); n > 0 {
		return n
	}
	return pairCount
}

func rate(count, typed int) float64 {
	if typed <= 0 || count <= 0 {
		return 0
	}
	return stats.Clamp(float64(count)/float64(typed), 0, 1)
}
