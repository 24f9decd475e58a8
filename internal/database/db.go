// Package database persists risk assessments to PostgreSQL and wraps
// writes in integrity and retry safeguards.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_assessments (
	id            BIGSERIAL PRIMARY KEY,
	address       TEXT        NOT NULL,
	protocol      TEXT        NOT NULL,
	risk_score    DOUBLE PRECISION NOT NULL,
	health_status TEXT        NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	payload       JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_assessments_addr_proto
	ON risk_assessments (address, protocol, created_at DESC);

CREATE TABLE IF NOT EXISTS write_audit_log (
	id           BIGSERIAL PRIMARY KEY,
	operation_id UUID        NOT NULL,
	operation    TEXT        NOT NULL,
	phase        TEXT        NOT NULL DEFAULT 'end',
	success      BOOLEAN     NOT NULL,
	detail       TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Open connects to PostgreSQL, configures the pool and applies the schema.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, apperrors.Database("error opening database connection", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.Database("error pinging database", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.Database("error applying schema", err)
	}

	logrus.Info("Database connection established")
	return db, nil
}

// Store persists and reads risk assessments.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveAssessment inserts one assessment row with the full assessment as a
// JSON payload.
func (s *Store) SaveAssessment(ctx context.Context, a model.RiskAssessment) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return apperrors.Database("error encoding assessment payload", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_assessments (address, protocol, risk_score, health_status, confidence, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.Address, a.Protocol, a.OverallRiskScore, string(a.HealthStatus), a.ConfidenceScore, payload)
	if err != nil {
		return apperrors.Database("error inserting assessment", err)
	}
	return nil
}

// LatestAssessment returns the most recent stored assessment for an
// address and protocol.
func (s *Store) LatestAssessment(ctx context.Context, address, protocol string) (model.RiskAssessment, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM risk_assessments
		 WHERE address = $1 AND protocol = $2
		 ORDER BY created_at DESC LIMIT 1`,
		address, protocol).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.RiskAssessment{}, apperrors.NotFound(fmt.Sprintf("no assessment stored for %s on %s", address, protocol))
	}
	if err != nil {
		return model.RiskAssessment{}, apperrors.Database("error loading assessment", err)
	}

	var a model.RiskAssessment
	if err := json.Unmarshal(payload, &a); err != nil {
		return model.RiskAssessment{}, apperrors.Database("error decoding assessment payload", err)
	}
	return a, nil
}

// RecentAssessments returns up to limit assessments for an address, newest
// first, across all protocols.
func (s *Store) RecentAssessments(ctx context.Context, address string, limit int) ([]model.RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM risk_assessments
		 WHERE address = $1
		 ORDER BY created_at DESC LIMIT $2`,
		address, limit)
	if err != nil {
		return nil, apperrors.Database("error querying assessments", err)
	}
	defer rows.Close()

	var out []model.RiskAssessment
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Database("error scanning assessment row", err)
		}
		var a model.RiskAssessment
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, apperrors.Database("error decoding assessment payload", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAssessments reports the stored row count for an address, used by
// the write safety verification step.
func (s *Store) CountAssessments(ctx context.Context, address string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_assessments WHERE address = $1`, address).Scan(&n)
	if err != nil {
		return 0, apperrors.Database("error counting assessments", err)
	}
	return n, nil
}
