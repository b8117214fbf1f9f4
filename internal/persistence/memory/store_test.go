package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progress/internal/domain"
)

func TestApplyAccumulates(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7, FirstName: "Dana"}
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	res, err := store.Apply(ctx, user, "pushup", 30, 500, now)
	require.NoError(t, err)
	require.Equal(t, int64(30), res.NewTotal)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "pushup", 20, 500, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(50), res.NewTotal)

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "pushup"})
	require.NoError(t, err)
	require.Equal(t, int64(50), rec.Total)
	require.False(t, rec.Crossed)
	require.Equal(t, now.Add(time.Hour), rec.UpdatedAt)
}

func TestApplyStickyCrossedFlag(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7}
	now := time.Now().UTC()

	res, err := store.Apply(ctx, user, "plank", 300, 300, now)
	require.NoError(t, err)
	require.False(t, res.PrevCrossed)

	res, err = store.Apply(ctx, user, "plank", 10, 300, now)
	require.NoError(t, err)
	require.True(t, res.PrevCrossed)

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "plank"})
	require.NoError(t, err)
	require.True(t, rec.Crossed)
}

func TestApplyUpsertsProfileAndParticipants(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Apply(ctx, domain.UserIdentity{ID: 2, FirstName: "Kim"}, "pushup", 10, 500, now)
	require.NoError(t, err)
	_, err = store.Apply(ctx, domain.UserIdentity{ID: 1, Username: "dana"}, "pushup", 10, 500, now)
	require.NoError(t, err)

	participants, err := store.Participants(ctx, "pushup")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, participants)

	info, err := store.ReadUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "dana", info.Username)
	require.Equal(t, now, info.LastUpdate)

	// Profiles refresh on every command.
	_, err = store.Apply(ctx, domain.UserIdentity{ID: 1, FirstName: "Dana"}, "squat", 10, 1000, now.Add(time.Minute))
	require.NoError(t, err)
	info, err = store.ReadUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Dana", info.FirstName)
	require.Empty(t, info.Username)
	require.Equal(t, now.Add(time.Minute), info.LastUpdate)
}

func TestReadMissingState(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()

	_, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 99, ExerciseID: "pushup"})
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = store.ReadUser(ctx, 99)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	records, err := store.ReadRecords(ctx, 99, []string{"pushup", "plank"})
	require.NoError(t, err)
	require.Empty(t, records)

	participants, err := store.Participants(ctx, "pushup")
	require.NoError(t, err)
	require.Empty(t, participants)
}

func TestApplyCancelledContext(t *testing.T) {
	store := New()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Apply(ctx, domain.UserIdentity{ID: 7}, "pushup", 10, 500, time.Now())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// Concurrent increments from many goroutines must produce the exact sum and
// exactly one observed crossing.
func TestApplyConcurrentCrossingIsExactlyOnce(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7}

	const (
		workers   = 50
		increment = int64(12)
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

// A read racing concurrent increments must never see a total at or past the
// goal while the crossed flag is still unset.
func TestReadsObserveTotalAndCrossedTogether(t *testing.T) {
	store := New()
	defer store.Close()
	ctx := context.Background()
	user := domain.UserIdentity{ID: 7}

	const (
		increment = int64(60)
		goal      = int64(120)
	)

	done := make(chan struct{})
	var reader sync.WaitGroup
	reader.Add(1)
	go func() {
		defer reader.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			records, err := store.ReadRecords(ctx, user.ID, []string{"pushup"})
			require.NoError(t, err)
			if rec, ok := records["pushup"]; ok && rec.Total >= goal {
				require.True(t, rec.Crossed, "total %d reached the goal with crossed unset", rec.Total)
			}
		}
	}()

	var writers sync.WaitGroup
	for i := 0; i < 2; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			_, err := store.Apply(ctx, user, "pushup", increment, goal, time.Now().UTC())
			require.NoError(t, err)
		}()
	}
	writers.Wait()
	close(done)
	reader.Wait()

	rec, err := store.ReadRecord(ctx, domain.RecordKey{UserID: 7, ExerciseID: "pushup"})
	require.NoError(t, err)
	require.Equal(t, goal, rec.Total)
	require.True(t, rec.Crossed)
}
