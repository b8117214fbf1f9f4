package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS progress_records (
    user_id     BIGINT      NOT NULL,
    exercise_id TEXT        NOT NULL,
    total       BIGINT      NOT NULL DEFAULT 0,
    crossed     BOOLEAN     NOT NULL DEFAULT FALSE,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, exercise_id)
);

CREATE INDEX IF NOT EXISTS idx_progress_records_exercise
    ON progress_records (exercise_id);

CREATE TABLE IF NOT EXISTS progress_users (
    user_id     BIGINT      PRIMARY KEY,
    first_name  TEXT        NOT NULL,
    username    TEXT,
    last_update TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the progress tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure progress schema: %w", err)
	}
	return nil
}
