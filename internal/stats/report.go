package stats

import (
	"context"

	"github.com/verte-zerg/keyprint/internal/model"
)

// Source is the read side of a profile store.
type Source interface {
	GetProfile(ctx context.Context, userID string) (*model.KeystrokeProfile, error)
	ListAttempts(ctx context.Context, userID string, limit int) ([]model.Attempt, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	UserID    string
	Profile   *model.KeystrokeProfile
	Attempts  []model.Attempt
	Decisions map[model.Decision]int
	// Similarity holds scores oldest first, for plotting.
	Similarity []float64
	MeanScore  float64
	TopReasons []ReasonCount
}

const reportTopReasons = 5

// BuildReport loads a user's profile and most recent attempts. An empty userID
// reports attempts across all users without a profile.
func BuildReport(ctx context.Context, src Source, userID string, last int) (Report, error) {
	report := Report{UserID: userID, Decisions: map[model.Decision]int{}}
	if userID != "" {
		p, err := src.GetProfile(ctx, userID)
		if err != nil {
			return Report{}, err
		}
		report.Profile = p
	}
	attempts, err := src.ListAttempts(ctx, userID, last)
	if err != nil {
		return Report{}, err
	}
	report.Attempts = attempts

	report.Similarity = make([]float64, 0, len(attempts))
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		report.Decisions[a.Decision]++
		if !hasReason(a.Reasons, model.ReasonProfileMissing) {
			report.Similarity = append(report.Similarity, a.Similarity)
		}
	}
	report.MeanScore = Round3(Mean(report.Similarity))
	report.TopReasons = TopReasons(attempts, reportTopReasons)
	return report, nil
}

func hasReason(reasons []model.Reason, want model.Reason) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
