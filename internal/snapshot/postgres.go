package snapshot

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"scheduler-stats/internal/common/errors"
)

const postgresSinkName = "postgres"

// PostgresSink appends every snapshot to a history table.
type PostgresSink struct {
	db    *sql.DB
	table string
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, table: pq.QuoteIdentifier(table)}
}

func (s *PostgresSink) Name() string { return postgresSinkName }

// EnsureSchema creates the history table when it does not exist yet.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          UUID PRIMARY KEY,
	endpoint    TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL,
	request_id  TEXT,
	fetched_at  TIMESTAMPTZ NOT NULL,
	body        JSONB NOT NULL
)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Publish(ctx context.Context, snap Snapshot) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, endpoint, target, status_code, request_id, fetched_at, body) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.table,
	)

	_, err := s.db.ExecContext(ctx, query,
		snap.ID,
		snap.Endpoint,
		snap.Target,
		snap.StatusCode,
		snap.RequestID,
		snap.FetchedAt,
		string(snap.Body),
	)
	if err != nil {
		return errors.NewSnapshotPublishFailedError(postgresSinkName, err)
	}
	return nil
}
