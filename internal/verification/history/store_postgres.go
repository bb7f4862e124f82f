// Package history appends every freshly computed verification to PostgreSQL
// so past outcomes for a company can be audited after the cache entry expires.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trustos/internal/verification/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS verification_history (
	id            UUID PRIMARY KEY,
	cache_key     TEXT NOT NULL,
	company_name  TEXT NOT NULL,
	registration  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	trust_score   DOUBLE PRECISION NOT NULL,
	flags         TEXT[] NOT NULL DEFAULT '{}',
	failure_code  TEXT NOT NULL DEFAULT '',
	sources       JSONB NOT NULL,
	computed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS verification_history_key_idx
	ON verification_history (cache_key, computed_at DESC);
`

// Entry is one stored verification.
type Entry struct {
	ID           uuid.UUID
	CacheKey     string
	CompanyName  string
	Registration string
	Status       models.Status
	TrustScore   float64
	Flags        []string
	FailureCode  string
	Sources      []models.SourceResult
	ComputedAt   time.Time
}

// PostgresStore persists verification history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed history store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the history table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create verification history schema: %w", err)
	}
	return nil
}

// Record appends one verification for subject.
func (s *PostgresStore) Record(ctx context.Context, subject models.Subject, res *models.VerificationResult) error {
	if res == nil {
		return fmt.Errorf("verification result is required")
	}
	sources, err := json.Marshal(res.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	failureCode := ""
	if res.Failure != nil {
		failureCode = res.Failure.Code
	}
	flags := res.Flags
	if flags == nil {
		flags = []string{}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_history
			(id, cache_key, company_name, registration, status, trust_score, flags, failure_code, sources, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(),
		res.CacheKey,
		subject.Name,
		subject.RegistrationNumber,
		string(res.Status),
		res.TrustScore,
		pq.Array(flags),
		failureCode,
		sources,
		res.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification history: %w", err)
	}
	return nil
}

// List returns up to limit entries for cacheKey, newest first.
func (s *PostgresStore) List(ctx context.Context, cacheKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cache_key, company_name, registration, status, trust_score, flags, failure_code, sources, computed_at
		FROM verification_history
		WHERE cache_key = $1
		ORDER BY computed_at DESC
		LIMIT $2`, cacheKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list verification history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			status  string
			sources []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.CacheKey,
			&e.CompanyName,
			&e.Registration,
			&status,
			&e.TrustScore,
			pq.Array(&e.Flags),
			&e.FailureCode,
			&sources,
			&e.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification history: %w", err)
		}
		e.Status = models.Status(status)
		if err := json.Unmarshal(sources, &e.Sources); err != nil {
			return nil, fmt.Errorf("decode history sources: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification history: %w", err)
	}
	return entries, nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
