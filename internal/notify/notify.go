// Package notify holds the outbound collaborators the tournament services talk to.
// Both are best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindRegistrationConfirmed Kind = "registration_confirmed"
	KindBracketReady          Kind = "bracket_ready"
	KindMatchResult           Kind = "match_result"
	KindAdvanced              Kind = "advanced"
	KindTournamentCancelled   Kind = "tournament_cancelled"
)

type EventType string

const (
	EventPlayerRegistered    EventType = "player.registered"
	EventTournamentActivated EventType = "tournament.activated"
	EventTournamentCompleted EventType = "tournament.completed"
	EventTournamentCancelled EventType = "tournament.cancelled"
	EventMatchStarted        EventType = "match.started"
	EventMatchCompleted      EventType = "match.completed"
	EventMatchAdvanced       EventType = "match.advanced"

	// Carries a Notifier message to a user topic
	EventNotification EventType = "user.notification"
)

type Event struct {
	Type    EventType `json:"type"`
	Topic   string    `json:"topic"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Notifier delivers a message to one user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind Kind, text string) error
}

// Broadcaster publishes an event to everyone subscribed to a topic.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, event Event) error
}

func TournamentTopic(id uuid.UUID) string {
	return "tournament:" + id.String()
}

func UserTopic(id uuid.UUID) string {
	return "user:" + id.String()
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, kind Kind, text string) error {
	n.logger.InfoContext(ctx, "notification", "user_id", userID, "kind", kind, "text", text)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID uuid.UUID, kind Kind, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, kind, text); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything, used where no listeners exist.
type Discard struct{}

func (Discard) Notify(context.Context, uuid.UUID, Kind, string) error { return nil }

func (Discard) Publish(context.Context, string, Event) error { return nil }
