// Package presence fans session lifecycle events out to study rooms.
//
// Events are soft signals. The store mutation an event describes has already
// committed when the event is published, publishing is not transactional with
// it, and delivery is at-least-once with no ordering across users. Consumers
// must be able to rebuild room state by re-querying the API.
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"cdr.dev/slog"
	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/database/pubsub"
)

type EventType string

const (
	EventSessionStarted EventType = "session-started"
	EventSessionPaused  EventType = "session-paused"
	EventSessionResumed EventType = "session-resumed"
	EventSessionStopped EventType = "session-stopped"
)

// RoomChannel returns the pubsub channel that carries presence events for a
// room.
func RoomChannel(code string) string {
	return "room-" + code
}

// Event is a session lifecycle notification. Every event is self-contained: a
// fresh listener can reconstruct the member's presence from the payload alone,
// without diffing against any previous event.
type Event struct {
	Type      EventType `json:"event"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Tag       string    `json:"tag,omitempty"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	PausedAt     *time.Time `json:"paused_at,omitempty"`
	NewStartedAt *time.Time `json:"new_started_at,omitempty"`
	// CompletedToday is the sum of today's completed durations in seconds,
	// sent with session-started so listeners can show a running day total.
	CompletedToday *int64 `json:"completed_today,omitempty"`
	// Duration is the completed interval in seconds, sent with
	// session-stopped.
	Duration *int64 `json:"duration,omitempty"`
}

// Broadcaster publishes presence events to room channels.
type Broadcaster struct {
	Pubsub pubsub.Pubsub
	Logger slog.Logger
}

// Broadcast publishes the event to every given room. Publish failures are
// logged and swallowed; a committed transition is never surfaced as failed
// because its broadcast failed.
func (b *Broadcaster) Broadcast(ctx context.Context, rooms []database.Room, event Event) {
	if len(rooms) == 0 {
		return
	}
	raw, err := json.Marshal(event)
	if err != nil {
		b.Logger.Error(ctx, "marshal presence event",
			slog.F("event", event.Type), slog.Error(err))
		return
	}
	for _, room := range rooms {
		err = b.Pubsub.Publish(RoomChannel(room.Code), raw)
		if err != nil {
			b.Logger.Warn(ctx, "publish presence event",
				slog.F("event", event.Type),
				slog.F("room_code", room.Code),
				slog.Error(err))
		}
	}
}
