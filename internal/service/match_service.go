package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/AdamBeresnev/tourney/internal/store"
	"github.com/AdamBeresnev/tourney/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const maxScoreLength = 64

// ResultReporter records match outcomes and moves winners on through the bracket.
type ResultReporter struct {
	db         *sqlx.DB
	store      *store.TournamentStore
	dispatcher *Dispatcher
}

func NewResultReporter(db *sqlx.DB, store *store.TournamentStore, dispatcher *Dispatcher) *ResultReporter {
	return &ResultReporter{db: db, store: store, dispatcher: dispatcher}
}

type ReportOutcome struct {
	Match bracket.Match `json:"match"`
	// Nil when the winner had nowhere to go, e.g. after the final
	NextMatch *bracket.Match `json:"next_match,omitempty"`
	// 1 or 2 when NextMatch is set
	NextSlot int `json:"next_slot,omitempty"`
	// Rounds the winner skipped because every slot there was already taken
	ByeRounds []int `json:"bye_rounds,omitempty"`
}

func (o *ReportOutcome) Advanced() bool {
	return o.NextMatch != nil
}

func (s *ResultReporter) GetMatch(ctx context.Context, matchID uuid.UUID) (*bracket.Match, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

// loadPlayable fetches a match and its tournament and checks the match can be played.
func (s *ResultReporter) loadPlayable(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) (*bracket.Match, *bracket.Tournament, error) {
	match, err := s.store.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get match: %w", err)
	}

	if match.Resolved() {
		return nil, nil, fmt.Errorf("match %s is %s: %w", matchID, match.Status, ErrAlreadyResolved)
	}
	if match.HasOpenSlot() {
		return nil, nil, fmt.Errorf("match %s: %w", matchID, ErrMatchNotReady)
	}

	tournament, err := s.store.GetTournamentTx(ctx, tx, match.TournamentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("tournament %s of match %s: %w", match.TournamentID, matchID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	if tournament.Status != bracket.TournamentActive {
		return nil, nil, fmt.Errorf("tournament %s is %s: %w", tournament.ID, tournament.Status, ErrTournamentNotActive)
	}

	return match, tournament, nil
}

// StartMatch marks a pending match with both players as in progress.
func (s *ResultReporter) StartMatch(ctx context.Context, matchID uuid.UUID) (*bracket.Match, error) {
	var started *bracket.Match
	err := inTxWithRetry(ctx, s.db, "start match", func(tx *sqlx.Tx) error {
		match, _, err := s.loadPlayable(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if match.Status != bracket.MatchPending {
			return fmt.Errorf("match %s is already %s: %w", matchID, match.Status, ErrInvalidStatusTransition)
		}

		match.Status = bracket.MatchInProgress
		if err := s.store.UpdateMatch(ctx, tx, match); err != nil {
			return err
		}
		started = match
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, started.TournamentID, notify.EventMatchStarted, started)
	return started, nil
}

// ReportResult completes the match and places the winner in the first open slot of the
// next round. A round whose slots are all taken is skipped as a bye. When the searched
// round has no matches at all the outcome carries no next match.
func (s *ResultReporter) ReportResult(ctx context.Context, matchID, winnerID uuid.UUID, score string) (*ReportOutcome, error) {
	var v validator
	v.check(winnerID != uuid.Nil, "winner_id", "must be provided")
	v.check(utf8.RuneCountInString(score) <= maxScoreLength, "score", fmt.Sprintf("must be at most %d characters", maxScoreLength))
	if err := v.err(); err != nil {
		return nil, err
	}

	var outcome *ReportOutcome
	err := inTxWithRetry(ctx, s.db, "report result", func(tx *sqlx.Tx) error {
		match, _, err := s.loadPlayable(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if !match.IsPlayer(winnerID) {
			return fmt.Errorf("winner %s in match %s: %w", winnerID, matchID, ErrInvalidWinner)
		}

		match.WinnerID = &winnerID
		match.Score = utils.StringOrNil(score)
		match.Status = bracket.MatchCompleted
		if err := s.store.UpdateMatch(ctx, tx, match); err != nil {
			return err
		}

		next, slot, byes, err := s.advance(ctx, tx, match.TournamentID, match.RoundNumber+1, winnerID)
		if err != nil {
			return err
		}

		outcome = &ReportOutcome{Match: *match, NextMatch: next, NextSlot: slot, ByeRounds: byes}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterResult(ctx, outcome)
	return outcome, nil
}

func (s *ResultReporter) advance(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, round int, winnerID uuid.UUID) (*bracket.Match, int, []int, error) {
	var byes []int
	for r := round; ; r++ {
		next, err := s.store.FindOpenSlotMatchTx(ctx, tx, tournamentID, r)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to find next match: %w", err)
		}

		if next != nil {
			slot := next.FillOpenSlot(winnerID)
			if err := s.store.UpdateMatch(ctx, tx, next); err != nil {
				return nil, 0, nil, err
			}
			return next, slot, byes, nil
		}

		count, err := s.store.CountMatchesInRoundTx(ctx, tx, tournamentID, r)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to count round %d matches: %w", r, err)
		}
		if count == 0 {
			return nil, 0, byes, nil
		}
		byes = append(byes, r)
	}
}

func (s *ResultReporter) afterResult(ctx context.Context, outcome *ReportOutcome) {
	match := outcome.Match
	winnerID := *match.WinnerID

	s.dispatcher.Publish(ctx, match.TournamentID, notify.EventMatchCompleted, match)

	for _, playerID := range []*uuid.UUID{match.Player1ID, match.Player2ID} {
		text := fmt.Sprintf("You lost your round %d match", match.RoundNumber)
		if *playerID == winnerID {
			text = fmt.Sprintf("You won your round %d match", match.RoundNumber)
		}
		s.dispatcher.Notify(ctx, *playerID, notify.KindMatchResult, text)
	}

	if !outcome.Advanced() {
		slog.InfoContext(ctx, "no advancement target",
			"match_id", match.ID, "tournament_id", match.TournamentID, "round", match.RoundNumber, "winner_id", winnerID)
		return
	}

	next := outcome.NextMatch
	slog.InfoContext(ctx, "winner advanced",
		"match_id", match.ID, "next_match_id", next.ID, "round", next.RoundNumber, "slot", outcome.NextSlot, "byes", outcome.ByeRounds)

	s.dispatcher.Publish(ctx, match.TournamentID, notify.EventMatchAdvanced, map[string]any{
		"from_match_id": match.ID,
		"match":         next,
		"slot":          outcome.NextSlot,
		"winner_id":     winnerID,
	})
	s.dispatcher.Notify(ctx, winnerID, notify.KindAdvanced,
		fmt.Sprintf("You advanced to round %d", next.RoundNumber))
}
