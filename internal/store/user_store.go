package store

import (
	"context"
	"database/sql"

	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserStore struct {
	db *sqlx.DB
}

const (
	getUserQuery    = "SELECT * FROM users WHERE id = ?"
	createUserQuery = `
		INSERT INTO users (id, username, tournament_count) VALUES
		(:id, :username, :tournament_count)
	`
	incrementTournamentCountQuery = `
		UPDATE users SET
		tournament_count = tournament_count + 1
		WHERE id = ?
	`
)

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserQuery, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	_, err := s.db.NamedExecContext(ctx, createUserQuery, user)
	return err
}

// IncrementTournamentCount returns sql.ErrNoRows when the user does not exist.
func (s *UserStore) IncrementTournamentCount(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, incrementTournamentCountQuery, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
