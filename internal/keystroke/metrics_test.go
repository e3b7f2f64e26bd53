package keystroke

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/generator"
	"github.com/verte-zerg/keyprint/internal/model"
)

func down(key string, t float64) model.KeystrokeEvent {
	return model.KeystrokeEvent{Key: key, Code: "Key" + key, Type: model.KeyDown, T: t}
}

func up(key string, t float64) model.KeystrokeEvent {
	return model.KeystrokeEvent{Key: key, Code: "Key" + key, Type: model.KeyUp, T: t}
}

func TestNormalizeDropsUnusableEvents(t *testing.T) {
	events := []model.KeystrokeEvent{
		up("a", 50),
		down("a", 0),
		{Key: "Shift", Code: "ShiftLeft", Type: model.KeyDown, T: 5},
		{Key: "A", Code: "ShiftRight", Type: model.KeyUp, T: 6},
		{Key: "b", Type: model.KeyDown, T: 10, Repeat: true},
		{Key: "c", Type: "press", T: 20},
		{Key: "d", Type: model.KeyDown, T: -1},
	}
	got := Normalize(events)
	require.Len(t, got, 2)
	assert.Equal(t, model.KeyDown, got[0].Type)
	assert.Equal(t, 50.0, got[1].T)
}

func TestNormalizeOrdersDownBeforeUpOnTies(t *testing.T) {
	got := Normalize([]model.KeystrokeEvent{up("a", 100), down("b", 100)})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Key)
	assert.Equal(t, "a", got[1].Key)
}

func TestPairEventsIgnoresInputOrderOfTies(t *testing.T) {
	events := []model.KeystrokeEvent{
		down("a", 0), down("b", 0), up("a", 90), down("c", 90),
		up("b", 120), up("c", 200), down("a", 200), up("a", 260),
	}
	want := []Pair{{Down: 0, Up: 90}, {Down: 0, Up: 120}, {Down: 90, Up: 200}, {Down: 200, Up: 260}}
	require.Equal(t, want, PairEvents(Normalize(events)))
	wantMetrics, wantReasons := ComputeMetrics(model.KeystrokeSample{Events: events})

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]model.KeystrokeEvent(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		assert.Equal(t, want, PairEvents(Normalize(shuffled)))
		m, reasons := ComputeMetrics(model.KeystrokeSample{Events: shuffled})
		assert.Equal(t, wantMetrics, m)
		assert.Equal(t, wantReasons, reasons)
	}
}

func TestPairEventsFIFO(t *testing.T) {
	events := Normalize([]model.KeystrokeEvent{
		down("a", 0),
		down("a", 10),
		up("a", 30),
		up("a", 60),
		up("z", 70),
		down("q", 80),
	})
	pairs := PairEvents(events)
	require.Len(t, pairs, 2)
	assert.Equal(t, Pair{Down: 0, Up: 30}, pairs[0])
	assert.Equal(t, Pair{Down: 10, Up: 60}, pairs[1])
}

func TestPairEventsSeparatesExpectedIndex(t *testing.T) {
	i0, i1 := 0, 1
	events := Normalize([]model.KeystrokeEvent{
		{Key: "l", Type: model.KeyDown, T: 0, ExpectedIndex: &i0},
		{Key: "l", Type: model.KeyDown, T: 10, ExpectedIndex: &i1},
		{Key: "l", Type: model.KeyUp, T: 40, ExpectedIndex: &i1},
		{Key: "l", Type: model.KeyUp, T: 50, ExpectedIndex: &i0},
	})
	pairs := PairEvents(events)
	require.Len(t, pairs, 2)
	assert.Equal(t, 50.0, pairs[0].Hold())
	assert.Equal(t, 30.0, pairs[1].Hold())
}

func TestBuildSeries(t *testing.T) {
	s := BuildSeries([]Pair{{Down: 0, Up: 100}, {Down: 150, Up: 220}, {Down: 200, Up: 300}})
	assert.Equal(t, []float64{100, 70, 100}, s.Hold)
	assert.Equal(t, []float64{150, 50}, s.DD)
	// 200-220 overlaps and is dropped.
	assert.Equal(t, []float64{50}, s.UD)
	assert.Equal(t, []float64{120, 80}, s.UU)
}

func TestComputeMetricsEmpty(t *testing.T) {
	m, reasons := ComputeMetrics(model.KeystrokeSample{})
	assert.Equal(t, model.KeystrokeSampleMetrics{}, m)
	assert.Equal(t, []model.Reason{model.ReasonInsufficientSample, model.ReasonLowDigraphCoverage}, reasons)
}

func TestComputeMetricsUniformTyping(t *testing.T) {
	var events []model.KeystrokeEvent
	keys := "abcde"
	for i, r := range keys {
		start := float64(i) * 200
		events = append(events, down(string(r), start), up(string(r), start+100))
	}
	m, reasons := ComputeMetrics(model.KeystrokeSample{
		Events:         events,
		ExpectedText:   keys,
		ErrorCount:     1,
		BackspaceCount: 10,
		IMEUsed:        true,
	})
	assert.Equal(t, []model.Reason{model.ReasonIMEComposition}, reasons)
	assert.Equal(t, model.TimingStats{Mean: 100, Median: 100}, m.Hold)
	assert.Equal(t, model.TimingStats{Mean: 200, Median: 200}, m.DD)
	assert.Equal(t, model.TimingStats{Mean: 100, Median: 100}, m.UD)
	assert.Equal(t, m.UD, m.Flight)
	assert.Equal(t, 5, m.KeystrokeCount)
	assert.Equal(t, 10, m.EventCount)
	assert.Equal(t, 4, m.DigraphCount)
	assert.Equal(t, 900.0, m.TotalDurationMs)
	assert.Equal(t, 5.556, m.TypingSpeed)
	assert.Equal(t, 0.2, m.ErrorRate)
	assert.Equal(t, 1.0, m.BackspaceRate, "rates are capped at 1")
}

func TestComputeMetricsTypedLengthFallback(t *testing.T) {
	events := []model.KeystrokeEvent{down("a", 0), up("a", 50), down("b", 100), up("b", 150), down("c", 200), up("c", 250)}

	m, _ := ComputeMetrics(model.KeystrokeSample{Events: events, TypedLength: 10})
	assert.Equal(t, 40.0, m.TypingSpeed)

	m, _ = ComputeMetrics(model.KeystrokeSample{Events: events})
	assert.Equal(t, 12.0, m.TypingSpeed)
}

func TestComputeMetricsFlightFallsBackToDD(t *testing.T) {
	// Every key is released after the next press, so there is no up-to-down gap.
	events := Normalize([]model.KeystrokeEvent{
		down("a", 0), down("b", 50), up("a", 80), down("c", 100), up("b", 130), up("c", 160),
	})
	m, reasons := ComputeMetrics(model.KeystrokeSample{Events: events})
	assert.Equal(t, m.DD, m.Flight)
	assert.Equal(t, 50.0, m.Flight.Mean)
	assert.Contains(t, reasons, model.ReasonLowDigraphCoverage)
}

func TestComputeMetricsDeterministic(t *testing.T) {
	sample := generator.NewSeeded(11).Sample(generator.SampleOptions{Text: "deterministic typing sample", Errors: 2, Backspaces: 2})
	m1, r1 := ComputeMetrics(sample)
	m2, r2 := ComputeMetrics(sample)
	assert.Equal(t, m1, m2)
	assert.Equal(t, r1, r2)
}

func TestComputeMetricsTrimsLongHold(t *testing.T) {
	sample := generator.NewSeeded(4).Sample(generator.SampleOptions{
		Text:          "outliers get trimmed quickly",
		HoldOverrides: map[int]float64{10: 1600},
	})
	require.Len(t, []rune(sample.ExpectedText), 28)

	m, reasons := ComputeMetrics(sample)
	require.NotEmpty(t, reasons)
	assert.Equal(t, model.ReasonOutlierTrimmed, reasons[0])
	assert.Less(t, m.Hold.Mean, 220.0)
	assert.Less(t, m.Hold.Median, 220.0)
	assert.Equal(t, 28, m.KeystrokeCount)
}

func TestComputeMetricsShortSampleKeepsLongHold(t *testing.T) {
	// Fifteen holds give the band [0, 15), so nothing is trimmed below twenty values.
	var events []model.KeystrokeEvent
	for i := 0; i < 15; i++ {
		hold := 100.0
		if i == 7 {
			hold = 1600
		}
		start := float64(i) * 2000
		events = append(events, down(string(rune('a'+i)), start), up(string(rune('a'+i)), start+hold))
	}
	m, reasons := ComputeMetrics(model.KeystrokeSample{Events: events})
	assert.Equal(t, 200.0, m.Hold.Mean)
	assert.NotContains(t, reasons, model.ReasonOutlierTrimmed)
}

func TestExtractSeriesKeepsRawValues(t *testing.T) {
	sample := generator.NewSeeded(4).Sample(generator.SampleOptions{
		Text:          "outliers get trimmed quickly",
		HoldOverrides: map[int]float64{10: 1600},
	})
	s := ExtractSeries(sample)
	require.Len(t, s.Hold, 28)
	longest := 0.0
	for _, h := range s.Hold {
		longest = max(longest, h)
	}
	assert.InDelta(t, 1600, longest, 0.01)
}
