package bracket

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentRegistration TournamentStatus = "registration"
	TournamentActive       TournamentStatus = "active"
	TournamentCompleted    TournamentStatus = "completed"
	TournamentCancelled    TournamentStatus = "cancelled"
)

const (
	DefaultMaxParticipants = 100
	MinParticipants        = 2
	MaxParticipantsLimit   = 1024
)

// Terminal reports whether no further status change is allowed.
func (s TournamentStatus) Terminal() bool {
	return s == TournamentCompleted || s == TournamentCancelled
}

// CanTransitionTo only allows the forward edges of the lifecycle.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	switch s {
	case TournamentRegistration:
		return next == TournamentActive || next == TournamentCancelled
	case TournamentActive:
		return next == TournamentCompleted || next == TournamentCancelled
	default:
		return false
	}
}

type Tournament struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	Name            string           `db:"name" json:"name"`
	Slug            string           `db:"slug" json:"slug"`
	Game            string           `db:"game" json:"game"`
	Prize           string           `db:"prize" json:"prize"`
	Status          TournamentStatus `db:"status" json:"status"`
	StartDate       time.Time        `db:"start_date" json:"start_date"`
	EndDate         *time.Time       `db:"end_date" json:"end_date,omitempty"`
	MaxParticipants int              `db:"max_participants" json:"max_participants"`
	Revision        int64            `db:"revision" json:"revision"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`

	// Registration order, loaded from tournament_participants
	Participants []uuid.UUID `db:"-" json:"participants"`
}

func (t *Tournament) HasParticipant(userID uuid.UUID) bool {
	return slices.Contains(t.Participants, userID)
}

func (t *Tournament) IsFull() bool {
	return len(t.Participants) >= t.MaxParticipants
}
