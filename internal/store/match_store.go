package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const openSlotQuery = `
	SELECT * FROM matches
	WHERE tournament_id = ? AND round_number = ?
	AND (player_1_id IS NULL OR player_2_id IS NULL)
	ORDER BY match_order ASC
	LIMIT 1
`

func (s *TournamentStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, tournament_id, round_number, match_order, player_1_id, player_2_id, winner_id, score, status, revision)
		VALUES (:id, :tournament_id, :round_number, :match_order, :player_1_id, :player_2_id, :winner_id, :score, :status, :revision)`, matches)
	return err
}

func (s *TournamentStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := s.db.GetContext(ctx, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *TournamentStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := tx.GetContext(ctx, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *TournamentStore) GetMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	return getMatches(ctx, s.db, tournamentID)
}

func (s *TournamentStore) GetMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.Match, error) {
	return getMatches(ctx, tx, tournamentID)
}

func getMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Match, error) {
	matches := []bracket.Match{}
	err := sqlx.SelectContext(ctx, q, &matches,
		"SELECT * FROM matches WHERE tournament_id = ? ORDER BY round_number ASC, match_order ASC", tournamentID)
	return matches, err
}

// FindOpenSlotMatchTx returns the first match of the round, by match order, with an empty
// player slot. A nil match with a nil error means every match of the round is full or the
// round has no matches.
func (s *TournamentStore) FindOpenSlotMatchTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, round int) (*bracket.Match, error) {
	var match bracket.Match
	err := tx.GetContext(ctx, &match, openSlotQuery, tournamentID, round)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *TournamentStore) CountMatchesInRoundTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, round int) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM matches WHERE tournament_id = ? AND round_number = ?", tournamentID, round)
	return count, err
}

func (s *TournamentStore) CountUnresolvedMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM matches WHERE tournament_id = ? AND status NOT IN (?, ?)",
		tournamentID, bracket.MatchCompleted, bracket.MatchCancelled)
	return count, err
}

// UpdateMatch is a compare-and-swap on the match revision.
func (s *TournamentStore) UpdateMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	res, err := tx.NamedExecContext(ctx, `UPDATE matches SET
		player_1_id = :player_1_id,
		player_2_id = :player_2_id,
		winner_id = :winner_id,
		score = :score,
		status = :status,
		revision = revision + 1
		WHERE id = :id AND revision = :revision`, match)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	match.Revision++
	return nil
}

func (s *TournamentStore) CancelOpenMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE matches SET status = ?, revision = revision + 1 WHERE tournament_id = ? AND status IN (?, ?)",
		bracket.MatchCancelled, tournamentID, bracket.MatchPending, bracket.MatchInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleRevision
	}
	return nil
}
