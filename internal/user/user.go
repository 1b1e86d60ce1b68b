package users

import (
	"time"

	"github.com/google/uuid"
)

// User is the directory record a participant id refers to.
type User struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Username        string    `db:"username" json:"username"`
	TournamentCount int       `db:"tournament_count" json:"tournament_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
