// Package store persists keystroke profiles and verification attempts.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/verte-zerg/keyprint/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrProfileNotFound is returned when deleting a profile that does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps SQLite access for profiles and attempts.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	// m.Close would close s.db as well, so only the source is released.
	defer func() {
		if cerr := src.Close(); cerr != nil {
			// Best-effort source close.
			_ = cerr
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

type profileRow struct {
	UserID           string `db:"user_id"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
	SampleCount      int    `db:"sample_count"`
	SampleRoundCount int    `db:"sample_round_count"`

	HoldMean     float64 `db:"hold_mean"`
	HoldStd      float64 `db:"hold_std"`
	HoldMedian   float64 `db:"hold_median"`
	FlightMean   float64 `db:"flight_mean"`
	FlightStd    float64 `db:"flight_std"`
	FlightMedian float64 `db:"flight_median"`

	DDMean   sql.NullFloat64 `db:"dd_mean"`
	DDStd    sql.NullFloat64 `db:"dd_std"`
	DDMedian sql.NullFloat64 `db:"dd_median"`
	UDMean   sql.NullFloat64 `db:"ud_mean"`
	UDStd    sql.NullFloat64 `db:"ud_std"`
	UDMedian sql.NullFloat64 `db:"ud_median"`
	UUMean   sql.NullFloat64 `db:"uu_mean"`
	UUStd    sql.NullFloat64 `db:"uu_std"`
	UUMedian sql.NullFloat64 `db:"uu_median"`

	TypingSpeedMean   float64 `db:"typing_speed_mean"`
	TypingSpeedStd    float64 `db:"typing_speed_std"`
	ErrorRateMean     float64 `db:"error_rate_mean"`
	BackspaceRateMean float64 `db:"backspace_rate_mean"`
	DigraphCount      int     `db:"digraph_count"`
}

const profileColumns = `user_id, created_at, updated_at, sample_count, sample_round_count,
	hold_mean, hold_std, hold_median, flight_mean, flight_std, flight_median,
	dd_mean, dd_std, dd_median, ud_mean, ud_std, ud_median, uu_mean, uu_std, uu_median,
	typing_speed_mean, typing_speed_std, error_rate_mean, backspace_rate_mean, digraph_count`

func toProfileRow(p model.KeystrokeProfile) profileRow {
	row := profileRow{
		UserID:            p.UserID,
		CreatedAt:         p.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:         p.UpdatedAt.UTC().Format(timeLayout),
		SampleCount:       p.SampleCount,
		SampleRoundCount:  p.SampleRoundCount,
		HoldMean:          p.Hold.Mean,
		HoldStd:           p.Hold.Std,
		HoldMedian:        p.Hold.Median,
		FlightMean:        p.Flight.Mean,
		FlightStd:         p.Flight.Std,
		FlightMedian:      p.Flight.Median,
		TypingSpeedMean:   p.TypingSpeedMean,
		TypingSpeedStd:    p.TypingSpeedStd,
		ErrorRateMean:     p.ErrorRateMean,
		BackspaceRateMean: p.BackspaceRateMean,
		DigraphCount:      p.DigraphCount,
	}
	row.DDMean, row.DDStd, row.DDMedian = nullStats(p.DD)
	row.UDMean, row.UDStd, row.UDMedian = nullStats(p.UD)
	row.UUMean, row.UUStd, row.UUMedian = nullStats(p.UU)
	return row
}

func (r profileRow) toModel() (model.KeystrokeProfile, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return model.KeystrokeProfile{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return model.KeystrokeProfile{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return model.KeystrokeProfile{
		UserID:            r.UserID,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
		SampleCount:       r.SampleCount,
		SampleRoundCount:  r.SampleRoundCount,
		Hold:              model.TimingStats{Mean: r.HoldMean, Std: r.HoldStd, Median: r.HoldMedian},
		Flight:            model.TimingStats{Mean: r.FlightMean, Std: r.FlightStd, Median: r.FlightMedian},
		DD:                statsFromNull(r.DDMean, r.DDStd, r.DDMedian),
		UD:                statsFromNull(r.UDMean, r.UDStd, r.UDMedian),
		UU:                statsFromNull(r.UUMean, r.UUStd, r.UUMedian),
		TypingSpeedMean:   r.TypingSpeedMean,
		TypingSpeedStd:    r.TypingSpeedStd,
		ErrorRateMean:     r.ErrorRateMean,
		BackspaceRateMean: r.BackspaceRateMean,
		DigraphCount:      r.DigraphCount,
	}, nil
}

func nullStats(ts *model.TimingStats) (mean, std, median sql.NullFloat64) {
	if ts == nil {
		return
	}
	return sql.NullFloat64{Float64: ts.Mean, Valid: true},
		sql.NullFloat64{Float64: ts.Std, Valid: true},
		sql.NullFloat64{Float64: ts.Median, Valid: true}
}

// A family is restored only when all three columns are present.
func statsFromNull(mean, std, median sql.NullFloat64) *model.TimingStats {
	if !mean.Valid || !std.Valid || !median.Valid {
		return nil
	}
	return &model.TimingStats{Mean: mean.Float64, Std: std.Float64, Median: median.Float64}
}

// GetProfile loads a user's profile. It returns nil, nil when none exists.
func (s *Store) GetProfile(ctx context.Context, userID string) (*model.KeystrokeProfile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile inserts or replaces a user's profile.
func (s *Store) SaveProfile(ctx context.Context, p model.KeystrokeProfile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("profile has no user id")
	}
	cols := strings.Split(profileColumns, ",")
	names := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		c = strings.TrimSpace(c)
		names[i] = ":" + c
		if c != "user_id" && c != "created_at" {
			updates = append(updates, c+" = excluded."+c)
		}
	}
	query := fmt.Sprintf(`INSERT INTO profiles (%s) VALUES (%s)
		ON CONFLICT(user_id) DO UPDATE SET %s`,
		profileColumns, strings.Join(names, ", "), strings.Join(updates, ", "))
	_, err := s.db.NamedExecContext(ctx, query, toProfileRow(p))
	return err
}

// DeleteProfile removes a user's profile. Recorded attempts are kept.
func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListProfiles returns all stored profiles ordered by user id.
func (s *Store) ListProfiles(ctx context.Context) ([]model.KeystrokeProfile, error) {
	var rows []profileRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+profileColumns+` FROM profiles ORDER BY user_id ASC`); err != nil {
		return nil, err
	}
	profiles := make([]model.KeystrokeProfile, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

type attemptRow struct {
	ID         string  `db:"id"`
	UserID     string  `db:"user_id"`
	At         string  `db:"at"`
	Decision   string  `db:"decision"`
	Similarity float64 `db:"similarity"`
	Distance   float64 `db:"distance"`
	Reasons    string  `db:"reasons"`
}

// RecordAttempt stores one verification outcome.
func (s *Store) RecordAttempt(ctx context.Context, a model.Attempt) error {
	reasons := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		reasons[i] = string(r)
	}
	row := attemptRow{
		ID:         a.ID,
		UserID:     a.UserID,
		At:         a.At.UTC().Format(timeLayout),
		Decision:   string(a.Decision),
		Similarity: a.Similarity,
		Distance:   a.Distance,
		Reasons:    strings.Join(reasons, ","),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO attempts (id, user_id, at, decision, similarity, distance, reasons)
		 VALUES (:id, :user_id, :at, :decision, :similarity, :distance, :reasons)`, row)
	return err
}

// ListAttempts returns the most recent attempts, newest first. An empty userID
// lists every user; a non-positive limit returns all rows.
func (s *Store) ListAttempts(ctx context.Context, userID string, limit int) ([]model.Attempt, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if userID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, userID)
	}
	query := fmt.Sprintf(`SELECT id, user_id, at, decision, similarity, distance, reasons
		FROM attempts
		WHERE %s
		ORDER BY at DESC, id ASC`, strings.Join(clauses, " AND "))
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []attemptRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	attempts := make([]model.Attempt, 0, len(rows))
	for _, row := range rows {
		at, err := time.Parse(time.RFC3339Nano, row.At)
		if err != nil {
			return nil, err
		}
		attempt := model.Attempt{
			ID:         row.ID,
			UserID:     row.UserID,
			At:         at,
			Decision:   model.Decision(row.Decision),
			Similarity: row.Similarity,
			Distance:   row.Distance,
			Reasons:    []model.Reason{},
		}
		if row.Reasons != "" {
			for _, r := range strings.Split(row.Reasons, ",") {
				attempt.Reasons = append(attempt.Reasons, model.Reason(r))
			}
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}
