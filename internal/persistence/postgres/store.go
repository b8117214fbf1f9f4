// Package postgres implements the progress Store on PostgreSQL for
// deployments that already run the platform's database. The atomic apply is
// a single INSERT ... ON CONFLICT statement, so the increment, the crossed
// flag and the timestamp commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progress/internal/domain"
)

// Store is the Postgres-backed domain.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Apply implements domain.Store. The record mutation is one statement; the
// profile upsert joins it in the same transaction.
func (s *Store) Apply(ctx context.Context, user domain.UserIdentity, exerciseID string, amount, goal int64, now time.Time) (domain.ApplyResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ApplyResult{}, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	const upsertUser = `INSERT INTO progress_users (user_id, first_name, username, last_update)
        VALUES ($1, $2, NULLIF($3, ''), $4)
        ON CONFLICT (user_id) DO UPDATE
        SET first_name = EXCLUDED.first_name,
            username   = EXCLUDED.username,
            last_update = EXCLUDED.last_update`

	if _, err := tx.Exec(ctx, upsertUser, user.ID, user.FirstName, user.Username, now); err != nil {
		return domain.ApplyResult{}, unavailable("upsert user", err)
	}

	const upsertRecord = `INSERT INTO progress_records AS pr (user_id, exercise_id, total, crossed, updated_at)
        VALUES ($1, $2, $3, $4 > 0 AND $3 >= $4, $5)
        ON CONFLICT (user_id, exercise_id) DO UPDATE
        SET total      = pr.total + $3,
            crossed    = pr.crossed OR ($4 > 0 AND pr.total + $3 >= $4),
            updated_at = $5
        RETURNING total, crossed`

	var newTotal int64
	var crossed bool
	if err := tx.QueryRow(ctx, upsertRecord, user.ID, exerciseID, amount, goal, now).Scan(&newTotal, &crossed); err != nil {
		return domain.ApplyResult{}, unavailable("upsert record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ApplyResult{}, unavailable("commit", err)
	}

	// Totals only ever grow and the flag is sticky from the moment the goal
	// is reached, so while a goal stays fixed the pre-increment crossed
	// state is derivable from the row the statement returned; a single
	// INSERT .. ON CONFLICT cannot also return the pre-update row. When a
	// redeploy raises a goal the crossing re-arms at the new threshold.
	prevTotal := newTotal - amount
	prevCrossed := goal > 0 && prevTotal >= goal

	return domain.ApplyResult{NewTotal: newTotal, PrevCrossed: prevCrossed}, nil
}

// ReadRecord implements domain.Store.
func (s *Store) ReadRecord(ctx context.Context, key domain.RecordKey) (domain.ProgressRecord, error) {
	const query = `SELECT total, crossed, updated_at FROM progress_records
        WHERE user_id = $1 AND exercise_id = $2`

	var rec domain.ProgressRecord
	err := s.pool.QueryRow(ctx, query, key.UserID, key.ExerciseID).Scan(&rec.Total, &rec.Crossed, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, fmt.Errorf("%w: user=%d exercise=%s", domain.ErrRecordNotFound, key.UserID, key.ExerciseID)
	}
	if err != nil {
		return domain.ProgressRecord{}, unavailable("read record", err)
	}
	return rec, nil
}

// ReadRecords implements domain.Store.
func (s *Store) ReadRecords(ctx context.Context, userID int64, exerciseIDs []string) (map[string]domain.ProgressRecord, error) {
	const query = `SELECT exercise_id, total, crossed, updated_at FROM progress_records
        WHERE user_id = $1 AND exercise_id = ANY($2)`

	rows, err := s.pool.Query(ctx, query, userID, exerciseIDs)
	if err != nil {
		return nil, unavailable("read records", err)
	}
	defer rows.Close()

	out := make(map[string]domain.ProgressRecord, len(exerciseIDs))
	for rows.Next() {
		var exerciseID string
		var rec domain.ProgressRecord
		if err := rows.Scan(&exerciseID, &rec.Total, &rec.Crossed, &rec.UpdatedAt); err != nil {
			return nil, unavailable("scan record", err)
		}
		out[exerciseID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read records", err)
	}
	return out, nil
}

// ExerciseRecords implements domain.Store.
func (s *Store) ExerciseRecords(ctx context.Context, exerciseID string, userIDs []int64) (map[int64]domain.ProgressRecord, error) {
	const query = `SELECT user_id, total, crossed, updated_at FROM progress_records
        WHERE exercise_id = $1 AND user_id = ANY($2)`

	rows, err := s.pool.Query(ctx, query, exerciseID, userIDs)
	if err != nil {
		return nil, unavailable("read exercise records", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.ProgressRecord, len(userIDs))
	for rows.Next() {
		var userID int64
		var rec domain.ProgressRecord
		if err := rows.Scan(&userID, &rec.Total, &rec.Crossed, &rec.UpdatedAt); err != nil {
			return nil, unavailable("scan exercise record", err)
		}
		out[userID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read exercise records", err)
	}
	return out, nil
}

// Participants implements domain.Store.
func (s *Store) Participants(ctx context.Context, exerciseID string) ([]int64, error) {
	const query = `SELECT user_id FROM progress_records WHERE exercise_id = $1 ORDER BY user_id`

	rows, err := s.pool.Query(ctx, query, exerciseID)
	if err != nil {
		return nil, unavailable("read participants", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, unavailable("scan participant", err)
		}
		out = append(out, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read participants", err)
	}
	return out, nil
}

// ReadUser implements domain.Store.
func (s *Store) ReadUser(ctx context.Context, userID int64) (domain.UserInfo, error) {
	const query = `SELECT first_name, COALESCE(username, ''), last_update FROM progress_users
        WHERE user_id = $1`

	info := domain.UserInfo{ID: userID}
	err := s.pool.QueryRow(ctx, query, userID).Scan(&info.FirstName, &info.Username, &info.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserInfo{}, fmt.Errorf("%w: id=%d", domain.ErrUserNotFound, userID)
	}
	if err != nil {
		return domain.UserInfo{}, unavailable("read user", err)
	}
	return info, nil
}

// Close implements domain.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
