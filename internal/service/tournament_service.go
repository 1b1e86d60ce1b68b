package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/AdamBeresnev/tourney/internal/store"
	"github.com/AdamBeresnev/tourney/internal/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type TournamentService struct {
	db         *sqlx.DB
	store      *store.TournamentStore
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewTournamentService(db *sqlx.DB, store *store.TournamentStore, dispatcher *Dispatcher) *TournamentService {
	return &TournamentService{db: db, store: store, dispatcher: dispatcher, now: time.Now}
}

type CreateTournamentInput struct {
	Name            string
	Game            string
	Prize           string
	StartDate       time.Time
	EndDate         *time.Time
	MaxParticipants int
}

type TournamentData struct {
	Tournament  *bracket.Tournament `json:"tournament"`
	Matches     []bracket.Match     `json:"matches"`
	Rounds      []bracket.Round     `json:"rounds"`
	NextMatchID *uuid.UUID          `json:"next_match_id,omitempty"`
}

func (in *CreateTournamentInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Game = strings.TrimSpace(in.Game)
	in.Prize = strings.TrimSpace(in.Prize)
	if in.MaxParticipants == 0 {
		in.MaxParticipants = bracket.DefaultMaxParticipants
	}
	in.StartDate = in.StartDate.UTC()
	if in.EndDate != nil {
		in.EndDate = utils.Ptr(in.EndDate.UTC())
	}
}

// validate rejects start dates already in the past, which the registration sweep would
// cancel on its next run.
func (in *CreateTournamentInput) validate(now time.Time) error {
	var v validator
	v.check(in.Name != "", "name", "must be provided")
	v.check(utf8.RuneCountInString(in.Name) <= 100, "name", "must be at most 100 characters")
	v.check(in.Game != "", "game", "must be provided")
	v.check(utf8.RuneCountInString(in.Game) <= 50, "game", "must be at most 50 characters")
	v.check(utf8.RuneCountInString(in.Prize) <= 200, "prize", "must be at most 200 characters")
	v.check(!in.StartDate.IsZero(), "start_date", "must be provided")
	v.check(in.StartDate.IsZero() || !in.StartDate.Before(now), "start_date", "must not be in the past")
	v.check(in.EndDate == nil || in.EndDate.After(in.StartDate), "end_date", "must be after start_date")
	v.check(in.MaxParticipants >= bracket.MinParticipants && in.MaxParticipants <= bracket.MaxParticipantsLimit,
		"max_participants", fmt.Sprintf("must be between %d and %d", bracket.MinParticipants, bracket.MaxParticipantsLimit))
	return v.err()
}

func (s *TournamentService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*bracket.Tournament, error) {
	input.normalize()
	if err := input.validate(s.now()); err != nil {
		return nil, err
	}

	tournament := &bracket.Tournament{
		ID:              uuid.New(),
		Name:            input.Name,
		Slug:            slug.Make(input.Name),
		Game:            input.Game,
		Prize:           input.Prize,
		Status:          bracket.TournamentRegistration,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		MaxParticipants: input.MaxParticipants,
		Participants:    []uuid.UUID{},
		CreatedAt:       s.now().UTC(),
	}

	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.store.CreateTournament(ctx, tx, tournament)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	slog.InfoContext(ctx, "tournament created", "tournament_id", tournament.ID, "max_participants", tournament.MaxParticipants)
	return tournament, nil
}

func (s *TournamentService) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	return s.store.ListTournaments(ctx)
}

func (s *TournamentService) GetTournamentData(ctx context.Context, id uuid.UUID) (*TournamentData, error) {
	var (
		tournament *bracket.Tournament
		matches    []bracket.Match
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.store.GetTournament(gCtx, id)
		if err != nil {
			return notFoundOr(err, "tournament", id)
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		m, err := s.store.GetMatches(gCtx, id)
		if err != nil {
			return fmt.Errorf("failed to get matches: %w", err)
		}
		matches = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var nextMatchID *uuid.UUID
	for _, m := range matches {
		if !m.Resolved() && !m.HasOpenSlot() {
			id := m.ID
			nextMatchID = &id
			break
		}
	}

	return &TournamentData{
		Tournament:  tournament,
		Matches:     matches,
		Rounds:      bracket.GroupRounds(matches),
		NextMatchID: nextMatchID,
	}, nil
}

func (s *TournamentService) ListMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	if _, err := s.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, notFoundOr(err, "tournament", tournamentID)
	}
	return s.store.GetMatches(ctx, tournamentID)
}

// CompleteTournament closes an active tournament once every match is resolved.
func (s *TournamentService) CompleteTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	var (
		tournament *bracket.Tournament
		champion   *uuid.UUID
	)
	err := inTxWithRetry(ctx, s.db, "complete tournament", func(tx *sqlx.Tx) error {
		t, err := s.transitionable(ctx, tx, id, bracket.TournamentCompleted)
		if err != nil {
			return err
		}

		unresolved, err := s.store.CountUnresolvedMatchesTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to count unresolved matches: %w", err)
		}
		if unresolved > 0 {
			return fmt.Errorf("tournament %s has %d open matches: %w", id, unresolved, ErrMatchesUnresolved)
		}

		matches, err := s.store.GetMatchesTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to get matches: %w", err)
		}
		champion = finalWinner(matches)

		t.Status = bracket.TournamentCompleted
		if t.EndDate == nil {
			t.EndDate = utils.Ptr(s.now().UTC())
		}
		if err := s.store.UpdateTournament(ctx, tx, t); err != nil {
			return err
		}
		tournament = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "tournament completed", "tournament_id", id, "champion", champion)
	s.dispatcher.Publish(ctx, id, notify.EventTournamentCompleted, map[string]any{
		"tournament": tournament,
		"champion":   champion,
	})
	return tournament, nil
}

// CancelTournament stops a tournament that is still registering or running. Open matches
// are cancelled with it.
func (s *TournamentService) CancelTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament *bracket.Tournament
	err := inTxWithRetry(ctx, s.db, "cancel tournament", func(tx *sqlx.Tx) error {
		t, err := s.transitionable(ctx, tx, id, bracket.TournamentCancelled)
		if err != nil {
			return err
		}

		if _, err := s.store.CancelOpenMatchesTx(ctx, tx, id); err != nil {
			return fmt.Errorf("failed to cancel matches: %w", err)
		}

		t.Status = bracket.TournamentCancelled
		if err := s.store.UpdateTournament(ctx, tx, t); err != nil {
			return err
		}
		tournament = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "tournament cancelled", "tournament_id", id)
	s.dispatcher.Publish(ctx, id, notify.EventTournamentCancelled, tournament)
	for _, participant := range tournament.Participants {
		s.dispatcher.Notify(ctx, participant, notify.KindTournamentCancelled,
			fmt.Sprintf("%s has been cancelled", tournament.Name))
	}
	return tournament, nil
}

// ExpireRegistrations cancels tournaments that never filled up before their start date.
func (s *TournamentService) ExpireRegistrations(ctx context.Context) (int, error) {
	stale, err := s.store.ListRegistrationsStartedBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list stale registrations: %w", err)
	}

	expired := 0
	for _, t := range stale {
		if _, err := s.CancelTournament(ctx, t.ID); err != nil {
			// Filled up or was cancelled since the list was read
			if errors.Is(err, ErrInvalidStatusTransition) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *TournamentService) transitionable(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, next bracket.TournamentStatus) (*bracket.Tournament, error) {
	t, err := s.store.GetTournamentTx(ctx, tx, id)
	if err != nil {
		return nil, notFoundOr(err, "tournament", id)
	}
	if !t.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("tournament %s from %s to %s: %w", id, t.Status, next, ErrInvalidStatusTransition)
	}
	return t, nil
}

// finalWinner is the winner of the match in the highest round.
func finalWinner(matches []bracket.Match) *uuid.UUID {
	var final *bracket.Match
	for i := range matches {
		if final == nil || matches[i].RoundNumber > final.RoundNumber {
			final = &matches[i]
		}
	}
	if final == nil {
		return nil
	}
	return final.WinnerID
}

func notFoundOr(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
