package store

import (
	"context"
	"errors"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrStaleRevision is returned when a compare-and-swap update finds the row was written
// since it was read.
var ErrStaleRevision = errors.New("stale revision")

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, name, slug, game, prize, status, start_date, end_date, max_participants, revision, created_at)
        VALUES (:id, :name, :slug, :game, :prize, :status, :start_date, :end_date, :max_participants, :revision, :created_at)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	return getTournament(ctx, s.db, id)
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Tournament, error) {
	return getTournament(ctx, tx, id)
}

func getTournament(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := sqlx.GetContext(ctx, q, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, err
	}

	participants := []uuid.UUID{}
	err := sqlx.SelectContext(ctx, q, &participants,
		"SELECT user_id FROM tournament_participants WHERE tournament_id = ? ORDER BY position ASC", id)
	if err != nil {
		return nil, err
	}
	tournament.Participants = participants

	return &tournament, nil
}

func (s *TournamentStore) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	tournaments := []bracket.Tournament{}
	err := s.db.SelectContext(ctx, &tournaments, "SELECT * FROM tournaments ORDER BY created_at DESC, name ASC")
	if err != nil {
		return nil, err
	}
	return tournaments, s.attachParticipants(ctx, tournaments)
}

// ListRegistrationsStartedBefore returns tournaments still taking registrations whose start date has passed.
func (s *TournamentStore) ListRegistrationsStartedBefore(ctx context.Context, before time.Time) ([]bracket.Tournament, error) {
	tournaments := []bracket.Tournament{}
	err := s.db.SelectContext(ctx, &tournaments,
		"SELECT * FROM tournaments WHERE status = ? AND start_date < ? ORDER BY start_date ASC",
		bracket.TournamentRegistration, before.UTC())
	if err != nil {
		return nil, err
	}
	return tournaments, s.attachParticipants(ctx, tournaments)
}

func (s *TournamentStore) attachParticipants(ctx context.Context, tournaments []bracket.Tournament) error {
	if len(tournaments) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(tournaments))
	for i, t := range tournaments {
		ids[i] = t.ID
	}

	query, args, err := sqlx.In(`SELECT tournament_id, user_id FROM tournament_participants
		WHERE tournament_id IN (?) ORDER BY tournament_id, position ASC`, ids)
	if err != nil {
		return err
	}

	var rows []struct {
		TournamentID uuid.UUID `db:"tournament_id"`
		UserID       uuid.UUID `db:"user_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return err
	}

	byTournament := make(map[uuid.UUID][]uuid.UUID)
	for _, r := range rows {
		byTournament[r.TournamentID] = append(byTournament[r.TournamentID], r.UserID)
	}
	for i := range tournaments {
		participants := byTournament[tournaments[i].ID]
		if participants == nil {
			participants = []uuid.UUID{}
		}
		tournaments[i].Participants = participants
	}
	return nil
}

func (s *TournamentStore) AddParticipant(ctx context.Context, tx *sqlx.Tx, tournamentID, userID uuid.UUID, position int) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO tournament_participants (tournament_id, user_id, position) VALUES (?, ?, ?)",
		tournamentID, userID, position)
	return err
}

// UpdateTournament writes status and end date if the stored revision still matches,
// then bumps the revision on the passed struct.
func (s *TournamentStore) UpdateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	res, err := tx.NamedExecContext(ctx, `UPDATE tournaments SET
		status = :status,
		end_date = :end_date,
		revision = revision + 1
		WHERE id = :id AND revision = :revision`, tournament)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	tournament.Revision++
	return nil
}
