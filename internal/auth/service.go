package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/profile"
)

// ErrEmptyUserID is returned when a request has no user id.
var ErrEmptyUserID = errors.New("user id is empty")

// ProfileStore persists one keystroke profile per user.
// GetProfile returns nil, nil when the user has no profile.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.KeystrokeProfile, error)
	SaveProfile(ctx context.Context, p model.KeystrokeProfile) error
	DeleteProfile(ctx context.Context, userID string) error
}

// AttemptLog records verification outcomes.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, a model.Attempt) error
}

// EnrollRequest is one enrollment round.
type EnrollRequest struct {
	UserID  string
	Sample  model.KeystrokeSample
	Targets *model.EnrollmentTargets
}

// VerifyRequest is one verification attempt.
type VerifyRequest struct {
	UserID string
	Sample model.KeystrokeSample
	Policy *model.Policy
}

// Service runs enrollment and verification against a ProfileStore.
type Service struct {
	profiles ProfileStore
	attempts AttemptLog
	metrics  *Metrics
	logger   *zap.Logger
	policy   model.Policy
	locks    *userLocks
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithAttemptLog records every verification in log.
func WithAttemptLog(log AttemptLog) Option {
	return func(s *Service) { s.attempts = log }
}

// WithMetrics reports enrollments and decisions to m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPolicy sets the policy used when a request carries none.
func WithPolicy(p model.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service. A nil logger disables logging.
func NewService(profiles ProfileStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		profiles: profiles,
		logger:   logger,
		locks:    newUserLocks(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll merges one sample into the user's profile and persists it.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return EnrollResult{}, ErrEmptyUserID
	}
	targets := s.policy.Enrollment
	if req.Targets != nil {
		targets = *req.Targets
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	prior, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return EnrollResult{}, fmt.Errorf("failed to load profile: %w", err)
	}
	res := EnrollSample(userID, prior, req.Sample, s.now().UTC(), targets)
	if err := s.profiles.SaveProfile(ctx, res.Profile); err != nil {
		return EnrollResult{}, fmt.Errorf("failed to save profile: %w", err)
	}
	s.metrics.observeEnrollment()
	s.logger.Info("enrollment round merged",
		zap.String("user", userID),
		zap.Int("rounds", res.Progress.RoundsCompleted),
		zap.Int("keystrokes", res.Progress.KeystrokesCollected),
		zap.Bool("ready", res.Progress.Ready),
		zap.Strings("reasons", reasonStrings(res.Reasons)),
	)
	return res, nil
}

// Verify scores a sample against the stored profile. On allow, and when the
// policy permits it, the profile is adapted and saved before the user lock is
// released.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return VerifyResult{}, ErrEmptyUserID
	}
	policy := req.Policy
	if policy == nil {
		policy = &s.policy
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	prior, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to load profile: %w", err)
	}
	res := VerifySample(req.Sample, prior, policy)
	now := s.now().UTC()

	if prior != nil && res.Decision == model.DecisionAllow && UpdateOnAllow(policy) {
		adapted := profile.Adapt(*prior, res.Metrics, AdaptRate(policy), now)
		if err := s.profiles.SaveProfile(ctx, adapted); err != nil {
			return VerifyResult{}, fmt.Errorf("failed to save adapted profile: %w", err)
		}
		res.ProfileUpdated = true
	}

	res.AttemptID = s.newID()
	if s.attempts != nil {
		attempt := model.Attempt{
			ID:         res.AttemptID,
			UserID:     userID,
			At:         now,
			Decision:   res.Decision,
			Similarity: res.Similarity,
			Distance:   res.Distance,
			Reasons:    res.Reasons,
		}
		if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
			s.logger.Warn("failed to record attempt", zap.String("user", userID), zap.Error(err))
		}
	}
	s.metrics.observeDecision(res, prior != nil)
	s.logger.Info("verification decided",
		zap.String("user", userID),
		zap.String("attempt", res.AttemptID),
		zap.String("decision", string(res.Decision)),
		zap.Float64("similarity", res.Similarity),
		zap.Float64("distance", res.Distance),
		zap.Bool("profile_updated", res.ProfileUpdated),
		zap.Strings("reasons", reasonStrings(res.Reasons)),
	)
	return res, nil
}

// Profile returns the stored profile or nil when the user has none.
func (s *Service) Profile(ctx context.Context, userID string) (*model.KeystrokeProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// DeleteProfile removes the user's biometric profile.
func (s *Service) DeleteProfile(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}
	unlock := s.locks.lock(userID)
	defer unlock()
	if err := s.profiles.DeleteProfile(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	s.logger.Info("profile deleted", zap.String("user", userID))
	return nil
}

func reasonStrings(reasons []model.Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
