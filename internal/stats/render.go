package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/keyprint/internal/model"
)

const (
	terminalWidthBackup = 80
	minSparkWidth       = 8
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Verdict is the printable part of a verification result.
type Verdict struct {
	Decision       model.Decision
	Similarity     float64
	Distance       float64
	Thresholds     model.Thresholds
	Reasons        []model.Reason
	ProfileUpdated bool
	AttemptID      string
}

// Renderer writes human-readable reports. Styling is dropped when the writer
// is not a terminal.
type Renderer struct {
	w       io.Writer
	width   int
	heading lipgloss.Style
	muted   lipgloss.Style
	allow   lipgloss.Style
	stepUp  lipgloss.Style
	deny    lipgloss.Style
}

// NewRenderer builds a Renderer for w.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		w:       w,
		width:   TerminalWidth(w),
		heading: r.NewStyle().Bold(true).Underline(true),
		muted:   r.NewStyle().Faint(true),
		allow:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		stepUp:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		deny:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// TerminalWidth returns the width of w when it is a terminal, else a default.
func TerminalWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return terminalWidthBackup
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// Sparkline draws values as block glyphs scaled between their min and max.
// Longer series are averaged into width buckets.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	values = resample(values, width)
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(len(sparkRunes)-1)))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

func resample(values []float64, width int) []float64 {
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		start := i * len(values) / width
		end := (i + 1) * len(values) / width
		out[i] = Mean(values[start:end])
	}
	return out
}

func (r *Renderer) sparkWidth() int {
	return max(r.width-20, minSparkWidth)
}

func (r *Renderer) decision(d model.Decision) string {
	switch d {
	case model.DecisionAllow:
		return r.allow.Render(string(d))
	case model.DecisionDeny:
		return r.deny.Render(string(d))
	default:
		return r.stepUp.Render(string(d))
	}
}

func (r *Renderer) lines(lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func timingRows(families []string, values []model.TimingStats) [][]string {
	rows := make([][]string, len(families))
	for i, name := range families {
		v := values[i]
		rows[i] = []string{name, formatMs(v.Mean), formatMs(v.Std), formatMs(v.Median)}
	}
	return rows
}

var timingHeaders = []string{"Feature", "Mean", "Std", "Median"}
var numericCols = map[int]bool{1: true, 2: true, 3: true}

func formatMs(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

func reasonList(reasons []model.Reason) string {
	if len(reasons) == 0 {
		return "none"
	}
	out := make([]string, len(reasons))
	for i, reason := range reasons {
		out[i] = string(reason)
	}
	return strings.Join(out, ", ")
}

// RenderMetrics prints extracted sample metrics. hold is the raw hold series
// drawn as a sparkline; it may be nil.
func (r *Renderer) RenderMetrics(m model.KeystrokeSampleMetrics, reasons []model.Reason, hold []float64) error {
	lines := []string{r.heading.Render("Sample metrics")}
	lines = append(lines, FormatTable(timingHeaders, timingRows(
		[]string{"hold", "flight", "dd", "ud", "uu"},
		[]model.TimingStats{m.Hold, m.Flight, m.DD, m.UD, m.UU},
	), numericCols)...)
	lines = append(lines,
		"",
		fmt.Sprintf("typing speed    %.3f keys/s", m.TypingSpeed),
		fmt.Sprintf("error rate      %.3f", m.ErrorRate),
		fmt.Sprintf("backspace rate  %.3f", m.BackspaceRate),
		fmt.Sprintf("keystrokes      %d (%d events, %d digraphs)", m.KeystrokeCount, m.EventCount, m.DigraphCount),
		fmt.Sprintf("duration        %.3f ms", m.TotalDurationMs),
		fmt.Sprintf("reasons         %s", reasonList(reasons)),
	)
	if len(hold) > 0 {
		lines = append(lines, fmt.Sprintf("hold series     %s", Sparkline(hold, r.sparkWidth())))
	}
	return r.lines(lines...)
}

// RenderProfile prints a stored profile with its enrollment progress.
func (r *Renderer) RenderProfile(p model.KeystrokeProfile, progress model.EnrollmentProgress) error {
	names := []string{"hold", "flight"}
	values := []model.TimingStats{p.Hold, p.Flight}
	for _, fam := range []struct {
		name string
		ts   *model.TimingStats
	}{{"dd", p.DD}, {"ud", p.UD}, {"uu", p.UU}} {
		if fam.ts != nil {
			names = append(names, fam.name)
			values = append(values, *fam.ts)
		}
	}

	status := r.stepUp.Render("enrolling")
	if progress.Ready {
		status = r.allow.Render("ready")
	}
	lines := []string{
		r.heading.Render("Profile " + p.UserID),
		r.muted.Render(fmt.Sprintf("created %s, updated %s",
			p.CreatedAt.Format("2006-01-02 15:04:05"), p.UpdatedAt.Format("2006-01-02 15:04:05"))),
	}
	lines = append(lines, FormatTable(timingHeaders, timingRows(names, values), numericCols)...)
	lines = append(lines,
		"",
		fmt.Sprintf("typing speed    %.3f ± %.3f keys/s", p.TypingSpeedMean, p.TypingSpeedStd),
		fmt.Sprintf("error rate      %.3f", p.ErrorRateMean),
		fmt.Sprintf("backspace rate  %.3f", p.BackspaceRateMean),
		fmt.Sprintf("digraphs        %d", p.DigraphCount),
		fmt.Sprintf("rounds          %d/%d (%d remaining)", progress.RoundsCompleted, progress.RoundsTarget, progress.RoundsRemaining),
		fmt.Sprintf("keystrokes      %d/%d (%d remaining)", progress.KeystrokesCollected, progress.KeystrokesTarget, progress.KeystrokesRemaining),
		fmt.Sprintf("status          %s", status),
	)
	return r.lines(lines...)
}

// RenderVerdict prints a verification outcome.
func (r *Renderer) RenderVerdict(v Verdict) error {
	lines := []string{
		fmt.Sprintf("decision        %s", r.decision(v.Decision)),
		fmt.Sprintf("similarity      %.3f", v.Similarity),
		fmt.Sprintf("distance        %.3f", v.Distance),
		r.muted.Render(fmt.Sprintf("thresholds      allow %.3f, step-up %.3f, deny %.3f",
			v.Thresholds.Allow, v.Thresholds.StepUp, v.Thresholds.Deny)),
		fmt.Sprintf("reasons         %s", reasonList(v.Reasons)),
	}
	if v.ProfileUpdated {
		lines = append(lines, "profile         adapted")
	}
	if v.AttemptID != "" {
		lines = append(lines, r.muted.Render("attempt         "+v.AttemptID))
	}
	return r.lines(lines...)
}

// RenderReport prints attempt history as a table with a similarity trend.
func (r *Renderer) RenderReport(report Report) error {
	title := "History"
	if report.UserID != "" {
		title += " " + report.UserID
	}
	lines := []string{r.heading.Render(title)}
	if len(report.Attempts) == 0 {
		return r.lines(append(lines, "no attempts recorded")...)
	}
	rows := make([][]string, 0, len(report.Attempts))
	for _, a := range report.Attempts {
		rows = append(rows, []string{
			a.At.Local().Format("2006-01-02 15:04:05"),
			a.UserID,
			string(a.Decision),
			fmt.Sprintf("%.3f", a.Similarity),
			fmt.Sprintf("%.3f", a.Distance),
			reasonList(a.Reasons),
		})
	}
	lines = append(lines, FormatTable(
		[]string{"Time", "User", "Decision", "Similarity", "Distance", "Reasons"},
		rows, map[int]bool{3: true, 4: true})...)
	lines = append(lines,
		"",
		fmt.Sprintf("allow %d, step_up %d, deny %d, mean similarity %.3f",
			report.Decisions[model.DecisionAllow], report.Decisions[model.DecisionStepUp],
			report.Decisions[model.DecisionDeny], report.MeanScore),
	)
	if len(report.Similarity) > 1 {
		lines = append(lines, "trend "+Sparkline(report.Similarity, r.sparkWidth()))
	}
	for _, rc := range report.TopReasons {
		lines = append(lines, r.muted.Render(fmt.Sprintf("%-26s %d", rc.Reason, rc.Count)))
	}
	return r.lines(lines...)
}
