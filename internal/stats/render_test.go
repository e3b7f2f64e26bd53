package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/model"
)

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil, 10))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{5, 5, 5}, 10))
	assert.Equal(t, "▁█", Sparkline([]float64{1, 2}, 10))

	line := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 10)
	assert.Equal(t, "▁▂▃▄▅▆▇█", line)

	resampled := Sparkline([]float64{0, 0, 10, 10}, 2)
	assert.Equal(t, "▁█", resampled)
}

func TestTerminalWidthNonTTY(t *testing.T) {
	assert.Equal(t, terminalWidthBackup, TerminalWidth(&bytes.Buffer{}))
}

func TestRenderMetricsPlain(t *testing.T) {
	var buf bytes.Buffer
	m := model.KeystrokeSampleMetrics{
		Hold:           model.TimingStats{Mean: 95.5, Std: 12, Median: 94},
		TypingSpeed:    4.25,
		KeystrokeCount: 30,
		EventCount:     60,
		DigraphCount:   29,
	}
	err := NewRenderer(&buf).RenderMetrics(m, []model.Reason{model.ReasonOutlierTrimmed}, []float64{90, 100, 1600})
	require.NoError(t, err)
	out := buf.String()
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "Sample metrics")
	assert.Contains(t, out, "hold    95.500 12.000 94.000")
	assert.Contains(t, out, "typing speed    4.250 keys/s")
	assert.Contains(t, out, "30 (60 events, 29 digraphs)")
	assert.Contains(t, out, "reasons         OUTLIER_TRIMMED")
	assert.Contains(t, out, "hold series     ▁▁█")
}

func TestRenderProfileSkipsMissingFamilies(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := model.KeystrokeProfile{
		UserID: "alice", CreatedAt: at, UpdatedAt: at,
		DD: &model.TimingStats{Mean: 200},
	}
	progress := model.EnrollmentProgress{RoundsCompleted: 2, RoundsTarget: 8, RoundsRemaining: 6}
	require.NoError(t, NewRenderer(&buf).RenderProfile(p, progress))
	out := buf.String()
	assert.Contains(t, out, "Profile alice")
	assert.Contains(t, out, "dd ")
	assert.NotContains(t, out, "uu ")
	assert.Contains(t, out, "rounds          2/8 (6 remaining)")
	assert.Contains(t, out, "status          enrolling")
}

func TestRenderVerdict(t *testing.T) {
	var buf bytes.Buffer
	v := Verdict{
		Decision:   model.DecisionDeny,
		Similarity: 0.12,
		Distance:   2.35,
		Thresholds: model.Thresholds{Allow: 0.76, StepUp: 0.56, Deny: 0.36},
		Reasons:    []model.Reason{model.ReasonHighDistance, model.ReasonLowSimilarity},
	}
	require.NoError(t, NewRenderer(&buf).RenderVerdict(v))
	out := buf.String()
	assert.Contains(t, out, "decision        deny")
	assert.Contains(t, out, "similarity      0.120")
	assert.Contains(t, out, "HIGH_DISTANCE, LOW_SIMILARITY")
	assert.NotContains(t, out, "adapted")
}

func TestRenderReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf).RenderReport(Report{UserID: "bob"}))
	assert.Equal(t, "History bob\nno attempts recorded\n", buf.String())
}

func TestRenderReportRows(t *testing.T) {
	var buf bytes.Buffer
	report := Report{
		Attempts: []model.Attempt{
			{UserID: "alice", Decision: model.DecisionAllow, Similarity: 0.91, At: time.Unix(60, 0)},
			{UserID: "alice", Decision: model.DecisionDeny, Similarity: 0.1, At: time.Unix(0, 0)},
		},
		Decisions:  map[model.Decision]int{model.DecisionAllow: 1, model.DecisionDeny: 1},
		Similarity: []float64{0.1, 0.91},
		MeanScore:  0.505,
	}
	require.NoError(t, NewRenderer(&buf).RenderReport(report))
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Decision"))
	assert.Contains(t, out, "allow 1, step_up 0, deny 1, mean similarity 0.505")
	assert.Contains(t, out, "trend ▁█")
}
