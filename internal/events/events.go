// Package events defines the message payloads exchanged with the bot gateway.
package events

import "time"

// Event type values carried in the event_type message header.
const (
	TypeProgressCommand = "progress.command"
	TypeGoalReached     = "progress.goal_reached"
)

// ProgressCommand is the inbound message asking the service to record an
// increment for one member and exercise.
type ProgressCommand struct {
	UserID     int64     `json:"user_id"`
	FirstName  string    `json:"first_name,omitempty"`
	Username   string    `json:"username,omitempty"`
	Alias      string    `json:"alias"`
	Amount     int64     `json:"amount"`
	ChatID     int64     `json:"chat_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GoalReached is emitted exactly when a member's running total first meets or
// exceeds the exercise goal.
type GoalReached struct {
	EventID      string    `json:"event_id"`
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	ExerciseID   string    `json:"exercise_id"`
	ExerciseName string    `json:"exercise_name"`
	FinalTotal   int64     `json:"final_total"`
	Goal         int64     `json:"goal"`
	ChatID       int64     `json:"chat_id"`
	Message      string    `json:"message"`
	OccurredAt   time.Time `json:"occurred_at"`
}
