package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/google/uuid"
)

// Dispatcher sends notifications and broadcasts after a transaction has committed.
// Failures are logged and never returned.
type Dispatcher struct {
	notifier    notify.Notifier
	broadcaster notify.Broadcaster
}

func NewDispatcher(notifier notify.Notifier, broadcaster notify.Broadcaster) *Dispatcher {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if broadcaster == nil {
		broadcaster = notify.Discard{}
	}
	return &Dispatcher{notifier: notifier, broadcaster: broadcaster}
}

func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, kind notify.Kind, text string) {
	if err := d.notifier.Notify(ctx, userID, kind, text); err != nil {
		slog.WarnContext(ctx, "notification failed", "user_id", userID, "kind", kind, "error", err)
	}
}

func (d *Dispatcher) Publish(ctx context.Context, tournamentID uuid.UUID, eventType notify.EventType, payload any) {
	topic := notify.TournamentTopic(tournamentID)
	event := notify.Event{
		Type:    eventType,
		Topic:   topic,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}
	if err := d.broadcaster.Publish(ctx, topic, event); err != nil {
		slog.WarnContext(ctx, "broadcast failed", "topic", topic, "type", eventType, "error", err)
	}
}
