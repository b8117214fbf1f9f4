package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/progress/internal/domain"
	"example.com/progress/internal/events"
)

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(testWriterAdapter{t}, "", 0)
}

type testWriterAdapter struct {
	t *testing.T
}

func (tw testWriterAdapter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

func sampleNotification() domain.GoalNotification {
	return domain.GoalNotification{
		UserID:       7,
		DisplayName:  "@dana",
		ExerciseID:   "pushup",
		ExerciseName: "Push-Ups",
		FinalTotal:   520,
		Goal:         500,
		Message:      "congrats",
	}
}

func TestAnnouncePublishesGoalEvent(t *testing.T) {
	writer := &stubWriter{}
	announcer := NewWithWriter(writer, "progress_announcements", testLogger(t))

	err := announcer.Announce(context.Background(), -100, sampleNotification())
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, []byte("-100"), msg.Key)
	require.Len(t, msg.Headers, 1)
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, events.TypeGoalReached, string(msg.Headers[0].Value))

	var event events.GoalReached
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	require.NotEmpty(t, event.EventID)
	require.Equal(t, int64(7), event.UserID)
	require.Equal(t, "@dana", event.DisplayName)
	require.Equal(t, "pushup", event.ExerciseID)
	require.Equal(t, int64(520), event.FinalTotal)
	require.Equal(t, int64(-100), event.ChatID)
	require.False(t, event.OccurredAt.IsZero())
}

func TestAnnounceUniqueEventIDs(t *testing.T) {
	writer := &stubWriter{}
	announcer := NewWithWriter(writer, "progress_announcements", testLogger(t))

	require.NoError(t, announcer.Announce(context.Background(), 1, sampleNotification()))
	require.NoError(t, announcer.Announce(context.Background(), 1, sampleNotification()))

	var first, second events.GoalReached
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &first))
	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &second))
	require.NotEqual(t, first.EventID, second.EventID)
}

func TestAnnounceWrapsWriteErrors(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker down")}
	announcer := NewWithWriter(writer, "progress_announcements", testLogger(t))

	err := announcer.Announce(context.Background(), 1, sampleNotification())
	require.Error(t, err)
	require.Contains(t, err.Error(), "write goal event")
}

func TestCloseReleasesWriter(t *testing.T) {
	writer := &stubWriter{}
	announcer := NewWithWriter(writer, "progress_announcements", testLogger(t))

	require.NoError(t, announcer.Close())
	require.True(t, writer.closed)
}

func TestNoopAnnouncer(t *testing.T) {
	var a Announcer = Noop{}
	require.NoError(t, a.Announce(context.Background(), 1, sampleNotification()))
	require.NoError(t, a.Close())
}
