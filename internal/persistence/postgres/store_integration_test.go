//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/progress/internal/domain"
)

func setupStore(t *testing.T) *Store {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progress"),
		postgrescontainer.WithUsername("progress"),
		postgrescontainer.WithPassword("progress"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, EnsureSchema(ctx, pool))
	return New(pool)
}

func TestStoreApplyAndRead(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7, FirstName: "Dana", Username: "dana"}
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	res, err := store.Apply(ctx, user, "pushup", 30, 500, now)
	require.NoError(t, err)
	require.Equal(t, int64(30), res.NewTotal)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "pushup", 490, 500, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(520), res.NewTotal)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "pushup", 10, 500, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(530), res.NewTotal)
	require.True(t, res.PrevCrossed)

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "pushup"})
	require.NoError(t, err)
	require.Equal(t, int64(530), rec.Total)
	require.True(t, rec.Crossed)

	info, err := store.ReadUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Dana", info.FirstName)
	require.Equal(t, "dana", info.Username)

	participants, err := store.Participants(ctx, "pushup")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, participants)
}

func TestStoreBulkReads(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Apply(ctx, domain.UserIdentity{ID: 1, Username: "dana"}, "pushup", 40, 500, now)
	require.NoError(t, err)
	_, err = store.Apply(ctx, domain.UserIdentity{ID: 2, FirstName: "Kim"}, "pushup", 120, 500, now)
	require.NoError(t, err)
	_, err = store.Apply(ctx, domain.UserIdentity{ID: 1, Username: "dana"}, "plank", 200, 300, now)
	require.NoError(t, err)

	records, err := store.ReadRecords(ctx, 1, []string{"pushup", "plank", "squat"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(40), records["pushup"].Total)
	require.Equal(t, int64(200), records["plank"].Total)

	byUser, err := store.ExerciseRecords(ctx, "pushup", []int64{1, 2, 99})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	require.Equal(t, int64(120), byUser[2].Total)

	_, err = store.ReadRecord(ctx, domain.RecordKey{UserID: 99, ExerciseID: "pushup"})
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = store.ReadUser(ctx, 99)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStoreConcurrentApply(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7}

	const (
		workers   = 20
		increment = int64(30)
		goal      = int64(500)
	)

	var wg sync.WaitGroup
	crossings := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Apply(ctx, user, "pushup", increment, goal, time.Now().UTC())
			require.NoError(t, err)

			prevTotal := res.NewTotal - increment
			if domain.Detect(prevTotal, res.NewTotal, goal, res.PrevCrossed) == domain.CrossingJust {
				crossings <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(crossings)

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "pushup"})
	require.NoError(t, err)
	require.Equal(t, workers*increment, rec.Total)
	require.True(t, rec.Crossed)
	require.Len(t, crossings, 1)
}

// Raising a goal between deployments re-arms crossing detection at the new
// threshold while the stored flag stays sticky.
func TestStoreApplyAfterGoalRaise(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7}
	now := time.Now().UTC()

	res, err := store.Apply(ctx, user, "plank", 120, 100, now)
	require.NoError(t, err)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "plank", 10, 500, now)
	require.NoError(t, err)
	require.Equal(t, int64(130), res.NewTotal)
	require.False(t, res.PrevCrossed)

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "plank"})
	require.NoError(t, err)
	require.True(t, rec.Crossed)

	res, err = store.Apply(ctx, user, "plank", 400, 500, now)
	require.NoError(t, err)
	require.Equal(t, int64(530), res.NewTotal)
	require.False(t, res.PrevCrossed)
	require.Equal(t, domain.CrossingJust, domain.Detect(130, res.NewTotal, 500, res.PrevCrossed))
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
