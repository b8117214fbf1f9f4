package domain

import (
	"fmt"

	"example.com/progress/internal/catalog"
)

// GoalNotification is the one-time congratulatory payload handed to the
// transport layer when a goal is first reached. The engine never delivers
// it; the recorder guarantees it is built at most once per crossing.
type GoalNotification struct {
	UserID       int64
	DisplayName  string
	ExerciseID   string
	ExerciseName string
	FinalTotal   int64
	Goal         int64
	Message      string
}

// BuildGoalNotification assembles the announcement for a just-crossed goal.
// Stateless; call it only for results where JustCrossed is true.
func BuildGoalNotification(user UserIdentity, ex catalog.Exercise, finalTotal int64) GoalNotification {
	name := user.DisplayName()
	return GoalNotification{
		UserID:       user.ID,
		DisplayName:  name,
		ExerciseID:   ex.ID,
		ExerciseName: ex.Name,
		FinalTotal:   finalTotal,
		Goal:         ex.Goal,
		Message: fmt.Sprintf(
			"🎉🏆 Goal Achieved! 🏆🎉\n\nCongrats %s! You've reached the goal of %d for %s!\n\nYour new total is %d! Keep pushing! 💪",
			name, ex.Goal, ex.Name, finalTotal,
		),
	}
}
