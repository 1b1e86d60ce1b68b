package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

type Match struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`

	// Position in the bracket, match order decides which open slot is filled first
	RoundNumber int `db:"round_number" json:"round_number"`
	MatchOrder  int `db:"match_order" json:"match_order"`

	Player1ID *uuid.UUID `db:"player_1_id" json:"player_1_id"`
	Player2ID *uuid.UUID `db:"player_2_id" json:"player_2_id"`

	WinnerID *uuid.UUID  `db:"winner_id" json:"winner_id"`
	Score    *string     `db:"score" json:"score"`
	Status   MatchStatus `db:"status" json:"status"`

	Revision  int64     `db:"revision" json:"revision"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (m *Match) Resolved() bool {
	return m.Status == MatchCompleted || m.Status == MatchCancelled
}

func (m *Match) HasOpenSlot() bool {
	return m.Player1ID == nil || m.Player2ID == nil
}

func (m *Match) IsPlayer(id uuid.UUID) bool {
	return (m.Player1ID != nil && *m.Player1ID == id) || (m.Player2ID != nil && *m.Player2ID == id)
}

// FillOpenSlot puts the player into player 1 if it is empty, otherwise player 2.
// Returns the slot used, or 0 when both are taken.
func (m *Match) FillOpenSlot(id uuid.UUID) int {
	switch {
	case m.Player1ID == nil:
		m.Player1ID = &id
		return 1
	case m.Player2ID == nil:
		m.Player2ID = &id
		return 2
	default:
		return 0
	}
}
