package domain

import (
	"context"
	"errors"
	"sort"
	"time"

	"example.com/progress/internal/catalog"
)

// ExerciseSummary is one row of the personal view.
type ExerciseSummary struct {
	Exercise      catalog.Exercise
	Total         int64
	Goal          int64
	PercentOfGoal float64
	Crossed       bool
	UpdatedAt     time.Time
}

// ParticipantStanding is one row of the group view for a single exercise.
type ParticipantStanding struct {
	UserID      int64
	DisplayName string
	Total       int64
	Goal        int64
	Crossed     bool
	LastUpdate  time.Time
}

// ExerciseStandings lists the participants of one exercise, best first.
type ExerciseStandings struct {
	Exercise     catalog.Exercise
	Participants []ParticipantStanding
}

// Summarize builds the personal view: exactly one entry per catalog
// exercise, in catalog declaration order, with zero-state entries for
// exercises the user never logged.
func (s *Service) Summarize(ctx context.Context, userID int64) ([]ExerciseSummary, error) {
	readCtx, cancel := s.boundedCtx(ctx)
	defer cancel()

	records, err := s.store.ReadRecords(readCtx, userID, s.catalog.IDs())
	if err != nil {
		return nil, err
	}

	exercises := s.catalog.Exercises()
	out := make([]ExerciseSummary, 0, len(exercises))
	for _, ex := range exercises {
		rec := records[ex.ID] // zero value for never-logged exercises
		out = append(out, ExerciseSummary{
			Exercise:      ex,
			Total:         rec.Total,
			Goal:          ex.Goal,
			PercentOfGoal: percentOf(rec.Total, ex.Goal),
			Crossed:       rec.Crossed,
			UpdatedAt:     rec.UpdatedAt,
		})
	}
	return out, nil
}

// SummarizeAll builds the group view. Each exercise lists only users who
// have logged it at least once, in descending total order with ties broken
// by ascending user id so chart layout is deterministic.
func (s *Service) SummarizeAll(ctx context.Context) ([]ExerciseStandings, error) {
	profiles := make(map[int64]UserInfo)

	exercises := s.catalog.Exercises()
	out := make([]ExerciseStandings, 0, len(exercises))

	for _, ex := range exercises {
		standings, err := s.exerciseStandings(ctx, ex, profiles)
		if err != nil {
			return nil, err
		}
		out = append(out, standings)
	}
	return out, nil
}

func (s *Service) exerciseStandings(ctx context.Context, ex catalog.Exercise, profiles map[int64]UserInfo) (ExerciseStandings, error) {
	readCtx, cancel := s.boundedCtx(ctx)
	defer cancel()

	userIDs, err := s.store.Participants(readCtx, ex.ID)
	if err != nil {
		return ExerciseStandings{}, err
	}
	if len(userIDs) == 0 {
		return ExerciseStandings{Exercise: ex, Participants: []ParticipantStanding{}}, nil
	}

	records, err := s.store.ExerciseRecords(readCtx, ex.ID, userIDs)
	if err != nil {
		return ExerciseStandings{}, err
	}

	participants := make([]ParticipantStanding, 0, len(records))
	for userID, rec := range records {
		profile, err := s.userProfile(readCtx, userID, profiles)
		if err != nil {
			return ExerciseStandings{}, err
		}
		participants = append(participants, ParticipantStanding{
			UserID:      userID,
			DisplayName: profile.DisplayName(),
			Total:       rec.Total,
			Goal:        ex.Goal,
			Crossed:     rec.Crossed,
			LastUpdate:  profile.LastUpdate,
		})
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Total != participants[j].Total {
			return participants[i].Total > participants[j].Total
		}
		return participants[i].UserID < participants[j].UserID
	})

	return ExerciseStandings{Exercise: ex, Participants: participants}, nil
}

// userProfile resolves and memoizes a user's stored profile for the duration
// of one group summary. A missing profile falls back to the numeric name
// rather than failing the whole view.
func (s *Service) userProfile(ctx context.Context, userID int64, cache map[int64]UserInfo) (UserInfo, error) {
	if profile, ok := cache[userID]; ok {
		return profile, nil
	}

	profile, err := s.store.ReadUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		profile = UserInfo{ID: userID}
	} else if err != nil {
		return UserInfo{}, err
	}

	cache[userID] = profile
	return profile, nil
}

func percentOf(total, goal int64) float64 {
	if goal <= 0 {
		return 0
	}
	return float64(total) / float64(goal) * 100
}
