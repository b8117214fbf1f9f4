// Package domain implements the progress tracking and aggregation engine.
package domain

import (
	"context"
	"fmt"
	"time"
)

// UserIdentity is the platform-assigned identity attached to every command.
type UserIdentity struct {
	ID        int64
	FirstName string
	Username  string
}

// DisplayName returns the best human-readable name for the user:
// handle first, then first name, then a numeric fallback.
func (u UserIdentity) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return fmt.Sprintf("User %d", u.ID)
}

// UserInfo is the stored profile for a user, refreshed on every logged command.
type UserInfo struct {
	ID         int64
	FirstName  string
	Username   string
	LastUpdate time.Time
}

// DisplayName mirrors UserIdentity.DisplayName for stored profiles.
func (u UserInfo) DisplayName() string {
	return UserIdentity{ID: u.ID, FirstName: u.FirstName, Username: u.Username}.DisplayName()
}

// RecordKey identifies one cumulative progress record.
type RecordKey struct {
	UserID     int64
	ExerciseID string
}

// ProgressRecord is the durable per-(user, exercise) state.
// Total never decreases; Crossed is sticky once set.
type ProgressRecord struct {
	Total     int64
	Crossed   bool
	UpdatedAt time.Time
}

// ApplyResult reports the outcome of one atomic increment.
type ApplyResult struct {
	NewTotal    int64
	PrevCrossed bool
}

// Store is the contract the engine requires from the durable backend.
//
// Apply is the single atomic unit of mutation: it increments the
// cumulative total, stamps the last-update time, sets the sticky crossed
// flag when the new total reaches the goal, registers the user as a
// participant of the exercise, and refreshes the stored user profile.
// Concurrent readers must never observe a partially applied update.
//
// Reads of absent records return ErrRecordNotFound; implementations wrap
// connectivity and timeout failures with ErrStoreUnavailable and
// malformed stored values with ErrCorruptState.
type Store interface {
	Apply(ctx context.Context, user UserIdentity, exerciseID string, amount, goal int64, now time.Time) (ApplyResult, error)
	ReadRecord(ctx context.Context, key RecordKey) (ProgressRecord, error)
	ReadRecords(ctx context.Context, userID int64, exerciseIDs []string) (map[string]ProgressRecord, error)
	ExerciseRecords(ctx context.Context, exerciseID string, userIDs []int64) (map[int64]ProgressRecord, error)
	Participants(ctx context.Context, exerciseID string) ([]int64, error)
	ReadUser(ctx context.Context, userID int64) (UserInfo, error)
	Close() error
}
