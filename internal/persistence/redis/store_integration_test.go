//go:build integration

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"example.com/progress/internal/domain"
)

func setupStore(t *testing.T) *Store {
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := New(ctx, Config{Addr: endpoint, DialTimeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreApplyAtomicity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7, FirstName: "Dana", Username: "dana"}
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	res, err := store.Apply(ctx, user, "plank", 250, 300, now)
	require.NoError(t, err)
	require.Equal(t, int64(250), res.NewTotal)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "plank", 60, 300, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(310), res.NewTotal)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "plank", 10, 300, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, res.PrevCrossed)

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "plank"})
	require.NoError(t, err)
	require.Equal(t, int64(320), rec.Total)
	require.True(t, rec.Crossed)
	require.Equal(t, now.Add(2*time.Hour).Unix(), rec.UpdatedAt.Unix())

	info, err := store.ReadUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "dana", info.Username)

	participants, err := store.Participants(ctx, "plank")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, participants)
}

func TestStoreBulkReadsAndMissingState(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Apply(ctx, domain.UserIdentity{ID: 1, Username: "dana"}, "pushup", 40, 500, now)
	require.NoError(t, err)
	_, err = store.Apply(ctx, domain.UserIdentity{ID: 2, FirstName: "Kim"}, "pushup", 120, 500, now)
	require.NoError(t, err)

	records, err := store.ReadRecords(ctx, 1, []string{"pushup", "plank"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(40), records["pushup"].Total)

	byUser, err := store.ExerciseRecords(ctx, "pushup", []int64{1, 2, 99})
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	_, err = store.ReadRecord(ctx, domain.RecordKey{UserID: 99, ExerciseID: "pushup"})
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = store.ReadUser(ctx, 99)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStoreProfileRefreshClearsUsername(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Apply(ctx, domain.UserIdentity{ID: 1, FirstName: "Dana", Username: "dana"}, "pushup", 10, 500, now)
	require.NoError(t, err)

	// A later command without a handle must not keep the stale one.
	_, err = store.Apply(ctx, domain.UserIdentity{ID: 1, FirstName: "Dana"}, "pushup", 10, 500, now.Add(time.Minute))
	require.NoError(t, err)

	info, err := store.ReadUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Dana", info.FirstName)
	require.Empty(t, info.Username)
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
