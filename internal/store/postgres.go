package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/testherd/testherd/internal/core"
)

// postgresStore persists result sets so the status display survives
// dispatcher restarts. Results are stored as a JSONB document; the commit id
// and sequence are columns so "latest by sequence" stays a single query.
type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a ResultStore backed by Postgres.
func NewPostgresStore(db *sqlx.DB) ResultStore {
	return &postgresStore{db: db}
}

func (s *postgresStore) Put(ctx context.Context, rs *core.ResultSet) error {
	if rs == nil || rs.CommitID == "" {
		return fmt.Errorf("result set must carry a commit id")
	}
	payload, err := json.Marshal(rs.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results for commit %s: %w", rs.CommitID, err)
	}

	query := `
		INSERT INTO result_sets (commit_id, sequence, results, produced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (commit_id) DO UPDATE
		SET sequence = EXCLUDED.sequence,
		    results = EXCLUDED.results,
		    produced_at = EXCLUDED.produced_at`
	_, err = s.db.ExecContext(ctx, query, rs.CommitID, rs.Sequence, payload, rs.ProducedAt)
	return err
}

func (s *postgresStore) Get(ctx context.Context, commitID string) (*core.ResultSet, error) {
	query := `
		SELECT commit_id, sequence, results, produced_at
		FROM result_sets
		WHERE commit_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, commitID))
}

func (s *postgresStore) Latest(ctx context.Context) (*core.ResultSet, error) {
	query := `
		SELECT commit_id, sequence, results, produced_at
		FROM result_sets
		ORDER BY sequence DESC
		LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, query))
}

func (s *postgresStore) scanOne(row *sql.Row) (*core.ResultSet, error) {
	var rs core.ResultSet
	var payload []byte
	err := row.Scan(&rs.CommitID, &rs.Sequence, &payload, &rs.ProducedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &rs.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results for commit %s: %w", rs.CommitID, err)
	}
	return &rs, nil
}
