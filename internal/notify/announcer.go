// Package notify publishes goal-reached announcements for downstream delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"example.com/progress/internal/domain"
	"example.com/progress/internal/events"
)

// Announcer delivers goal notifications to whoever renders them to the group.
type Announcer interface {
	Announce(ctx context.Context, chatID int64, n domain.GoalNotification) error
	Close() error
}

// Noop discards announcements. Used when no announce topic is configured.
type Noop struct{}

func (Noop) Announce(context.Context, int64, domain.GoalNotification) error { return nil }
func (Noop) Close() error                                                   { return nil }

// Writer exposes the minimal kafka.Writer interface needed by the announcer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAnnouncer writes GoalReached events to a Kafka topic, keyed by chat so
// announcements for one group stay ordered.
type KafkaAnnouncer struct {
	topic  string
	logger *log.Logger
	now    func() time.Time
	writer Writer
}

// NewKafkaAnnouncer creates an announcer for the given brokers and topic.
func NewKafkaAnnouncer(brokers []string, topic string, logger *log.Logger) *KafkaAnnouncer {
	if logger == nil {
		logger = log.Default()
	}
	return &KafkaAnnouncer{
		topic:  topic,
		logger: logger,
		now:    time.Now,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// NewWithWriter creates an announcer over an existing writer. Used by tests.
func NewWithWriter(writer Writer, topic string, logger *log.Logger) *KafkaAnnouncer {
	if logger == nil {
		logger = log.Default()
	}
	return &KafkaAnnouncer{topic: topic, logger: logger, now: time.Now, writer: writer}
}

// Announce publishes a GoalReached event for the crossing described by n.
func (a *KafkaAnnouncer) Announce(ctx context.Context, chatID int64, n domain.GoalNotification) error {
	event := events.GoalReached{
		EventID:      uuid.NewString(),
		UserID:       n.UserID,
		DisplayName:  n.DisplayName,
		ExerciseID:   n.ExerciseID,
		ExerciseName: n.ExerciseName,
		FinalTotal:   n.FinalTotal,
		Goal:         n.Goal,
		ChatID:       chatID,
		Message:      n.Message,
		OccurredAt:   a.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal goal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(chatID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeGoalReached)},
		},
	}

	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write goal event: %w", err)
	}
	a.logger.Printf("announced goal on %s: user %d exercise %s total %d", a.topic, n.UserID, n.ExerciseID, n.FinalTotal)
	return nil
}

// Close releases the underlying writer.
func (a *KafkaAnnouncer) Close() error {
	return a.writer.Close()
}
