package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"example.com/progress/internal/domain"
	"example.com/progress/internal/events"
	"example.com/progress/internal/notify"
)

// RecordHandler applies progress commands through the domain service and
// announces goal crossings.
type RecordHandler struct {
	service   *domain.Service
	announcer notify.Announcer
	logger    *log.Logger
}

// NewRecordHandler constructs a handler. A nil announcer disables announcements.
func NewRecordHandler(service *domain.Service, announcer notify.Announcer, logger *log.Logger) *RecordHandler {
	if announcer == nil {
		announcer = notify.Noop{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[record] ", log.LstdFlags)
	}
	return &RecordHandler{service: service, announcer: announcer, logger: logger}
}

// Handle records one progress command. Validation failures are dropped so the
// offset can be committed; transient store failures are returned for
// redelivery.
func (h *RecordHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeProgressCommand {
		h.logger.Printf("ignoring event type %q (offset=%d)", msg.EventType, msg.Offset)
		return nil
	}

	var cmd events.ProgressCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		recordDropped("malformed_command")
		h.logger.Printf("dropping malformed command (offset=%d): %v", msg.Offset, err)
		return nil
	}

	user := domain.UserIdentity{
		ID:        cmd.UserID,
		FirstName: cmd.FirstName,
		Username:  cmd.Username,
	}

	result, err := h.service.Record(ctx, user, cmd.Alias, cmd.Amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			recordDropped("invalid_amount")
			h.logger.Printf("dropping command with invalid amount %d (user=%d, offset=%d)", cmd.Amount, cmd.UserID, msg.Offset)
			return nil
		case errors.Is(err, domain.ErrInvalidUser):
			recordDropped("invalid_user")
			h.logger.Printf("dropping command with invalid user id %d (offset=%d)", cmd.UserID, msg.Offset)
			return nil
		case errors.Is(err, domain.ErrUnknownExercise):
			recordDropped("unknown_exercise")
			h.logger.Printf("dropping command with unknown exercise %q (user=%d, offset=%d)", cmd.Alias, cmd.UserID, msg.Offset)
			return nil
		default:
			return fmt.Errorf("record command (user=%d, exercise=%q): %w", cmd.UserID, cmd.Alias, err)
		}
	}

	if result.JustCrossed() {
		n := domain.BuildGoalNotification(user, result.Exercise, result.NewTotal)
		if err := h.announcer.Announce(ctx, cmd.ChatID, n); err != nil {
			// The increment is already committed; redelivery would double-count.
			h.logger.Printf("announce failed (user=%d, exercise=%s): %v", cmd.UserID, result.Exercise.ID, err)
		}
	}
	return nil
}
