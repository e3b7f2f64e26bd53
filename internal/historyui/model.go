// Package historyui provides the Bubble Tea verification history browser.
package historyui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keyprint/internal/enrollment"
	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/stats"
)

const (
	tabOverview = iota
	tabAttempts
	tabProfiles
)

const (
	defaultWidth   = 80
	minSparkWidth  = 10
	overviewTopN   = 5
	filterUserIdx  = 0
	filterLastIdx  = 1
	cardWrapCutoff = 80
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Store is the read side needed by the browser.
type Store interface {
	stats.Source
	ListProfiles(ctx context.Context) ([]model.KeystrokeProfile, error)
}

// Filter narrows the attempts shown.
type Filter struct {
	UserID string
	Last   int
}

// Model implements the Bubble Tea history UI.
type Model struct {
	store   Store
	filter  Filter
	targets model.EnrollmentTargets

	report   stats.Report
	profiles []model.KeystrokeProfile
	errMsg   string

	tabs      []string
	activeTab int
	overview  viewport.Model
	tables    map[int]*table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a history UI model and loads the first report.
func NewModel(st Store, filter Filter, targets model.EnrollmentTargets) *Model {
	attempts := newTable(attemptColumns())
	profiles := newTable(profileColumns())
	m := &Model{
		store:   st,
		filter:  filter,
		targets: targets,
		tabs:    []string{"Overview", "Attempts", "Profiles"},
		tables: map[int]*table.Model{
			tabAttempts: &attempts,
			tabProfiles: &profiles,
		},
		overview: viewport.New(0, 0),
	}
	m.filterInputs = []textinput.Model{
		newFilterInput("User: "),
		newFilterInput("Last: "),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderOverview()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "r":
			m.refresh()
			return m, nil
		case "/":
			return m.startFilter()
		case "g", "home":
			if t, ok := m.tables[m.activeTab]; ok {
				t.GotoTop()
			} else {
				m.overview.GotoTop()
			}
			return m, nil
		case "G", "end":
			if t, ok := m.tables[m.activeTab]; ok {
				t.GotoBottom()
			} else {
				m.overview.GotoBottom()
			}
			return m, nil
		default:
			var cmd tea.Cmd
			if t, ok := m.tables[m.activeTab]; ok {
				*t, cmd = t.Update(msg)
				return m, cmd
			}
			m.overview, cmd = m.overview.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// ActiveTab returns the index of the visible tab.
func (m *Model) ActiveTab() int {
	return m.activeTab
}

// Filter returns the applied filter.
func (m *Model) Filter() Filter {
	return m.filter
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func attemptColumns() []table.Column {
	return []table.Column{
		{Title: "Time", Width: 19},
		{Title: "User", Width: 12},
		{Title: "Decision", Width: 8},
		{Title: "Similarity", Width: 10},
		{Title: "Distance", Width: 8},
		{Title: "Reasons", Width: 40},
	}
}

func profileColumns() []table.Column {
	return []table.Column{
		{Title: "User", Width: 12},
		{Title: "Rounds", Width: 6},
		{Title: "Keys", Width: 6},
		{Title: "Digraphs", Width: 8},
		{Title: "Hold (ms)", Width: 9},
		{Title: "Flight (ms)", Width: 11},
		{Title: "Speed", Width: 6},
		{Title: "Status", Width: 9},
	}
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(1),
	)
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = m.width
	m.overview.Height = bodyHeight
	for _, t := range m.tables {
		t.SetWidth(m.width)
		t.SetHeight(max(bodyHeight-1, 1))
	}
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	m.activeTab = (m.activeTab + delta + count) % count
	for idx, t := range m.tables {
		if idx == m.activeTab {
			t.Focus()
		} else {
			t.Blur()
		}
	}
}

func (m *Model) refresh() {
	ctx := context.Background()
	report, err := stats.BuildReport(ctx, m.store, m.filter.UserID, m.filter.Last)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load history.")
		return
	}
	profiles, err := m.store.ListProfiles(ctx)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load profiles.")
		return
	}
	if m.filter.UserID != "" {
		profiles = filterProfiles(profiles, m.filter.UserID)
	}
	m.errMsg = ""
	m.report = report
	m.profiles = profiles
	m.tables[tabAttempts].SetRows(attemptRows(report.Attempts))
	m.tables[tabProfiles].SetRows(profileRows(profiles, m.targets))
	m.renderOverview()
}

func filterProfiles(profiles []model.KeystrokeProfile, userID string) []model.KeystrokeProfile {
	out := profiles[:0:0]
	for _, p := range profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

func attemptRows(attempts []model.Attempt) []table.Row {
	rows := make([]table.Row, 0, len(attempts))
	for _, a := range attempts {
		reasons := make([]string, len(a.Reasons))
		for i, r := range a.Reasons {
			reasons[i] = string(r)
		}
		rows = append(rows, table.Row{
			a.At.Local().Format("2006-01-02 15:04:05"),
			a.UserID,
			string(a.Decision),
			fmt.Sprintf("%.3f", a.Similarity),
			fmt.Sprintf("%.3f", a.Distance),
			strings.Join(reasons, ","),
		})
	}
	return rows
}

func profileRows(profiles []model.KeystrokeProfile, targets model.EnrollmentTargets) []table.Row {
	rows := make([]table.Row, 0, len(profiles))
	for _, p := range profiles {
		progress := enrollment.Progress(p, targets)
		status := "enrolling"
		if enrollment.Evaluate(p, targets).OK {
			status = "ready"
		}
		rows = append(rows, table.Row{
			p.UserID,
			fmt.Sprintf("%d/%d", progress.RoundsCompleted, progress.RoundsTarget),
			strconv.Itoa(p.SampleCount),
			strconv.Itoa(p.DigraphCount),
			fmt.Sprintf("%.1f", p.Hold.Mean),
			fmt.Sprintf("%.1f", p.Flight.Mean),
			fmt.Sprintf("%.2f", p.TypingSpeedMean),
			status,
		})
	}
	return rows
}

func (m *Model) renderOverview() {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	m.overview.SetContent(renderOverview(m.report, m.targets, width))
}

func renderOverview(report stats.Report, targets model.EnrollmentTargets, width int) string {
	if len(report.Attempts) == 0 {
		return "No attempts found."
	}
	cards := []string{
		metricCard("Attempts", strconv.Itoa(len(report.Attempts))),
		metricCard("Allow", strconv.Itoa(report.Decisions[model.DecisionAllow])),
		metricCard("Step-up", strconv.Itoa(report.Decisions[model.DecisionStepUp])),
		metricCard("Deny", strconv.Itoa(report.Decisions[model.DecisionDeny])),
		metricCard("Mean score", fmt.Sprintf("%.3f", report.MeanScore)),
	}
	var summary string
	if width < cardWrapCutoff {
		summary = strings.Join(cards, "\n")
	} else {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
		summary = lipgloss.JoinVertical(lipgloss.Left, row1, row2)
	}

	lines := []string{summary, ""}
	if len(report.Similarity) > 0 {
		spark := stats.Sparkline(report.Similarity, max(width-12, minSparkWidth))
		lines = append(lines, headerStyle.Render("Similarity"), spark, "")
	}
	if len(report.TopReasons) > 0 {
		lines = append(lines, headerStyle.Render("Top reasons"))
		rows := make([][]string, 0, overviewTopN)
		for _, rc := range report.TopReasons {
			rows = append(rows, []string{string(rc.Reason), strconv.Itoa(rc.Count)})
		}
		lines = append(lines, stats.FormatTable(nil, rows, map[int]bool{1: true})...)
	}
	if report.Profile != nil {
		var buf bytes.Buffer
		r := stats.NewRenderer(&buf)
		if err := r.RenderProfile(*report.Profile, enrollment.Progress(*report.Profile, targets)); err == nil {
			lines = append(lines, "", strings.TrimRight(buf.String(), "\n"))
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	return padLines(m.renderTabs(), m.width) + "\n" + padLines(m.renderFilterSummary(), m.width)
}

func (m *Model) renderFilterSummary() string {
	user := m.filter.UserID
	if user == "" {
		user = "all"
	}
	last := "all"
	if m.filter.Last > 0 {
		last = strconv.Itoa(m.filter.Last)
	}
	summary := truncateLine(fmt.Sprintf("Filter: user=%s  last=%s", user, last), m.width)
	return headerStyle.Render(summary)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Reload: r  Filter: /  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		lines := []string{"Filter (enter to apply, esc to cancel)"}
		for _, input := range m.filterInputs {
			lines = append(lines, input.View())
		}
		if m.filterError != "" {
			lines = append(lines, errorStyle.Render(m.filterError))
		}
		return fitLines(strings.Join(lines, "\n"), m.width, height)
	}
	switch m.activeTab {
	case tabAttempts:
		if len(m.report.Attempts) == 0 {
			return fitLines("No attempts found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.tables[tabAttempts].View()), m.width, height)
	case tabProfiles:
		if len(m.profiles) == 0 {
			return fitLines("No profiles found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.tables[tabProfiles].View()), m.width, height)
	default:
		return fitLines(m.overview.View(), m.width, height)
	}
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.filterInputs[filterUserIdx].SetValue(m.filter.UserID)
	if m.filter.Last > 0 {
		m.filterInputs[filterLastIdx].SetValue(strconv.Itoa(m.filter.Last))
	} else {
		m.filterInputs[filterLastIdx].SetValue("")
	}
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		filter, err := m.parseFilter()
		if err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filter = filter
		m.filterMode = false
		m.filterError = ""
		m.refresh()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if count == 0 {
		return nil
	}
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) parseFilter() (Filter, error) {
	filter := Filter{UserID: strings.TrimSpace(m.filterInputs[filterUserIdx].Value())}
	lastInput := strings.TrimSpace(m.filterInputs[filterLastIdx].Value())
	if lastInput != "" {
		parsed, err := strconv.Atoi(lastInput)
		if err != nil || parsed < 0 {
			return Filter{}, fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		filter.Last = parsed
	}
	return filter, nil
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
