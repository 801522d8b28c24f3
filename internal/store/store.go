// Package store keeps an optional log of computed assessments in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/chadsvasc/internal/score"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

// Assessment is one scored request.
type Assessment struct {
	ID        uuid.UUID                `json:"id"`
	Factors   score.PatientRiskFactors `json:"factors"`
	Score     int                      `json:"score"`
	Source    string                   `json:"source"`
	CreatedAt time.Time                `json:"created_at"`
}

// NewAssessment stamps a freshly computed score with an id and time.
func NewAssessment(f score.PatientRiskFactors, n int, source string) *Assessment {
	return &Assessment{
		ID:        uuid.New(),
		Factors:   f,
		Score:     n,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

type Repository interface {
	Save(ctx context.Context, a *Assessment) error
	Recent(ctx context.Context, limit int) ([]Assessment, error)
	Ping(ctx context.Context) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Connect opens a pool and pings it within five seconds.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func (r *PGRepository) Save(ctx context.Context, a *Assessment) error {
	f := a.Factors
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assessments
			(id, age, female, chf, hypertension, stroke_tia, vascular_disease, diabetes, score, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, f.Age, f.Female, f.CHF, f.Hypertension, f.StrokeOrTIA, f.VascularDisease, f.Diabetes,
		a.Score, a.Source, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// Recent returns the newest assessments first. limit is clamped to
// [1, MaxRecentLimit]; zero or less means DefaultRecentLimit.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Assessment, error) {
	limit = ClampLimit(limit)

	rows, err := r.pool.Query(ctx, `
		SELECT id, age, female, chf, hypertension, stroke_tia, vascular_disease, diabetes, score, source, created_at
		FROM assessments
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Assessment, error) {
		var a Assessment
		f := &a.Factors
		err := row.Scan(&a.ID, &f.Age, &f.Female, &f.CHF, &f.Hypertension, &f.StrokeOrTIA,
			&f.VascularDisease, &f.Diabetes, &a.Score, &a.Source, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan assessments: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PGRepository) Close() {
	r.pool.Close()
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
