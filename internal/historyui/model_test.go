package historyui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/model"
)

type fakeStore struct {
	profiles []model.KeystrokeProfile
	attempts []model.Attempt
	err      error
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (*model.KeystrokeProfile, error) {
	for _, p := range f.profiles {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListAttempts(_ context.Context, userID string, limit int) ([]model.Attempt, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Attempt
	for _, a := range f.attempts {
		if userID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListProfiles(context.Context) ([]model.KeystrokeProfile, error) {
	return f.profiles, nil
}

func newFakeStore() *fakeStore {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &fakeStore{
		profiles: []model.KeystrokeProfile{
			{UserID: "alice", SampleCount: 300, SampleRoundCount: 10, DigraphCount: 280},
			{UserID: "bob", SampleCount: 30, SampleRoundCount: 1, DigraphCount: 29},
		},
		attempts: []model.Attempt{
			{ID: "3", UserID: "bob", At: at.Add(2 * time.Minute), Decision: model.DecisionDeny, Similarity: 0.1,
				Reasons: []model.Reason{model.ReasonLowSimilarity}},
			{ID: "2", UserID: "alice", At: at.Add(time.Minute), Decision: model.DecisionAllow, Similarity: 0.92},
			{ID: "1", UserID: "alice", At: at, Decision: model.DecisionAllow, Similarity: 0.88},
		},
	}
}

func sized(m *Model) *Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(*Model)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewEmptyBeforeSize(t *testing.T) {
	m := NewModel(newFakeStore(), Filter{}, model.EnrollmentTargets{})
	assert.Equal(t, "", m.View())
}

func TestOverviewShowsCounts(t *testing.T) {
	m := sized(NewModel(newFakeStore(), Filter{}, model.EnrollmentTargets{}))
	view := m.View()
	assert.Contains(t, view, "Overview")
	assert.Contains(t, view, "Attempts")
	assert.Contains(t, view, "Filter: user=all  last=all")
	assert.Contains(t, view, "Mean score")
	assert.Contains(t, view, "LOW_SIMILARITY")
	assert.Len(t, strings.Split(view, "\n"), 30)
}

func TestTabsCycle(t *testing.T) {
	m := sized(NewModel(newFakeStore(), Filter{}, model.EnrollmentTargets{}))
	m.Update(key("l"))
	assert.Equal(t, tabAttempts, m.ActiveTab())
	assert.Contains(t, m.View(), "Similarity")

	m.Update(key("l"))
	assert.Equal(t, tabProfiles, m.ActiveTab())
	view := m.View()
	assert.Contains(t, view, "ready")
	assert.Contains(t, view, "enrolling")

	m.Update(key("l"))
	assert.Equal(t, tabOverview, m.ActiveTab())
	m.Update(key("h"))
	assert.Equal(t, tabProfiles, m.ActiveTab())
}

func TestFilterApplies(t *testing.T) {
	m := sized(NewModel(newFakeStore(), Filter{}, model.EnrollmentTargets{}))
	m.Update(key("/"))
	m.Update(key("alice"))
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(key("1"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.Equal(t, Filter{UserID: "alice", Last: 1}, m.Filter())
	assert.Len(t, m.report.Attempts, 1)
	assert.Len(t, m.profiles, 1)
	assert.Contains(t, m.View(), "Filter: user=alice  last=1")
}

func TestFilterRejectsBadLast(t *testing.T) {
	m := sized(NewModel(newFakeStore(), Filter{}, model.EnrollmentTargets{}))
	m.Update(key("/"))
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(key("x"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.filterMode)
	assert.Contains(t, m.View(), "invalid last value")

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.filterMode)
	assert.Equal(t, Filter{}, m.Filter())
}

func TestQuitKeys(t *testing.T) {
	m := sized(NewModel(newFakeStore(), Filter{}, model.EnrollmentTargets{}))
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	// q is text while filtering.
	m.Update(key("/"))
	m.Update(key("q"))
	assert.True(t, m.filterMode)
	assert.Equal(t, "q", m.filterInputs[filterUserIdx].Value())
}

func TestLoadErrorShown(t *testing.T) {
	st := newFakeStore()
	st.err = errors.New("disk on fire")
	m := sized(NewModel(st, Filter{}, model.EnrollmentTargets{}))
	assert.Contains(t, m.View(), "disk on fire")
}
