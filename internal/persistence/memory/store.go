// Package memory provides an in-memory Store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/progress/internal/domain"
)

// Store keeps all progress state behind a single mutex, which trivially
// satisfies the atomicity the Store contract requires per key.
type Store struct {
	mu           sync.RWMutex
	records      map[domain.RecordKey]domain.ProgressRecord
	users        map[int64]domain.UserInfo
	participants map[string]map[int64]struct{}
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		records:      make(map[domain.RecordKey]domain.ProgressRecord),
		users:        make(map[int64]domain.UserInfo),
		participants: make(map[string]map[int64]struct{}),
	}
}

// Apply implements domain.Store.
func (s *Store) Apply(ctx context.Context, user domain.UserIdentity, exerciseID string, amount, goal int64, now time.Time) (domain.ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ApplyResult{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.RecordKey{UserID: user.ID, ExerciseID: exerciseID}
	rec := s.records[key]
	prevCrossed := rec.Crossed

	rec.Total += amount
	rec.UpdatedAt = now
	if !prevCrossed && goal > 0 && rec.Total >= goal {
		rec.Crossed = true
	}
	s.records[key] = rec

	if s.participants[exerciseID] == nil {
		s.participants[exerciseID] = make(map[int64]struct{})
	}
	s.participants[exerciseID][user.ID] = struct{}{}

	s.users[user.ID] = domain.UserInfo{
		ID:         user.ID,
		FirstName:  user.FirstName,
		Username:   user.Username,
		LastUpdate: now,
	}

	return domain.ApplyResult{NewTotal: rec.Total, PrevCrossed: prevCrossed}, nil
}

// ReadRecord implements domain.Store.
func (s *Store) ReadRecord(ctx context.Context, key domain.RecordKey) (domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return domain.ProgressRecord{}, fmt.Errorf("%w: user=%d exercise=%s", domain.ErrRecordNotFound, key.UserID, key.ExerciseID)
	}
	return rec, nil
}

// ReadRecords implements domain.Store. Absent pairs are omitted from the map.
func (s *Store) ReadRecords(ctx context.Context, userID int64, exerciseIDs []string) (map[string]domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.ProgressRecord, len(exerciseIDs))
	for _, exerciseID := range exerciseIDs {
		if rec, ok := s.records[domain.RecordKey{UserID: userID, ExerciseID: exerciseID}]; ok {
			out[exerciseID] = rec
		}
	}
	return out, nil
}

// ExerciseRecords implements domain.Store.
func (s *Store) ExerciseRecords(ctx context.Context, exerciseID string, userIDs []int64) (map[int64]domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]domain.ProgressRecord, len(userIDs))
	for _, userID := range userIDs {
		if rec, ok := s.records[domain.RecordKey{UserID: userID, ExerciseID: exerciseID}]; ok {
			out[userID] = rec
		}
	}
	return out, nil
}

// Participants implements domain.Store. Returned ids are sorted ascending.
func (s *Store) Participants(ctx context.Context, exerciseID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := s.participants[exerciseID]
	out := make([]int64, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ReadUser implements domain.Store.
func (s *Store) ReadUser(ctx context.Context, userID int64) (domain.UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.users[userID]
	if !ok {
		return domain.UserInfo{}, fmt.Errorf("%w: id=%d", domain.ErrUserNotFound, userID)
	}
	return info, nil
}

// Close implements domain.Store.
func (s *Store) Close() error {
	return nil
}
