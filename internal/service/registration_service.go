package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/AdamBeresnev/tourney/internal/store"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserDirectory is the external user record the registration flow reads and updates.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*users.User, error)
	IncrementTournamentCount(ctx context.Context, id uuid.UUID) error
}

type RegistrationService struct {
	db         *sqlx.DB
	store      *store.TournamentStore
	users      UserDirectory
	generator  *BracketGenerator
	dispatcher *Dispatcher
}

func NewRegistrationService(db *sqlx.DB, store *store.TournamentStore, users UserDirectory, generator *BracketGenerator, dispatcher *Dispatcher) *RegistrationService {
	return &RegistrationService{
		db:         db,
		store:      store,
		users:      users,
		generator:  generator,
		dispatcher: dispatcher,
	}
}

type registration struct {
	tournament *bracket.Tournament
	matches    []bracket.Match
	duplicate  bool
	activated  bool
}

// Register appends the user to the tournament. Registering twice returns the current
// tournament unchanged. The registration that fills the last seat activates the tournament
// and generates its bracket in the same transaction.
func (s *RegistrationService) Register(ctx context.Context, tournamentID, userID uuid.UUID) (*bracket.Tournament, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"user_id": "must be provided"}}
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var result registration
	err := inTxWithRetry(ctx, s.db, "register", func(tx *sqlx.Tx) error {
		result = registration{}

		tournament, err := s.store.GetTournamentTx(ctx, tx, tournamentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
			}
			return fmt.Errorf("failed to get tournament: %w", err)
		}

		if tournament.Status.Terminal() {
			return fmt.Errorf("tournament %s is %s: %w", tournamentID, tournament.Status, ErrRegistrationClosed)
		}

		if tournament.HasParticipant(userID) {
			result.tournament = tournament
			result.duplicate = true
			return nil
		}

		if tournament.IsFull() {
			return fmt.Errorf("tournament %s has %d of %d seats taken: %w",
				tournamentID, len(tournament.Participants), tournament.MaxParticipants, ErrCapacityExceeded)
		}

		position := len(tournament.Participants) + 1
		if err := s.store.AddParticipant(ctx, tx, tournamentID, userID, position); err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}
		tournament.Participants = append(tournament.Participants, userID)

		if len(tournament.Participants) == tournament.MaxParticipants {
			tournament.Status = bracket.TournamentActive

			matches, err := s.generator.Generate(ctx, tx, tournament)
			if err != nil {
				return fmt.Errorf("failed to generate bracket: %w", err)
			}
			result.matches = matches
			result.activated = true
		}

		// Bumps the revision even when only a participant was added, so a concurrent
		// registration that read the same revision rolls back and retries.
		if err := s.store.UpdateTournament(ctx, tx, tournament); err != nil {
			return err
		}

		result.tournament = tournament
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.duplicate {
		slog.InfoContext(ctx, "user already registered", "tournament_id", tournamentID, "user_id", userID)
		return result.tournament, nil
	}

	s.afterRegistration(ctx, userID, result)
	return result.tournament, nil
}

func (s *RegistrationService) afterRegistration(ctx context.Context, userID uuid.UUID, result registration) {
	t := result.tournament

	if err := s.users.IncrementTournamentCount(ctx, userID); err != nil {
		slog.WarnContext(ctx, "failed to increment tournament count", "user_id", userID, "error", err)
	}

	s.dispatcher.Notify(ctx, userID, notify.KindRegistrationConfirmed,
		fmt.Sprintf("You are registered for %s", t.Name))
	s.dispatcher.Publish(ctx, t.ID, notify.EventPlayerRegistered, map[string]any{
		"user_id":          userID,
		"participants":     len(t.Participants),
		"max_participants": t.MaxParticipants,
	})

	slog.InfoContext(ctx, "user registered",
		"tournament_id", t.ID, "user_id", userID, "participants", len(t.Participants), "max", t.MaxParticipants)

	if !result.activated {
		return
	}

	slog.InfoContext(ctx, "tournament activated", "tournament_id", t.ID, "matches", len(result.matches))
	s.dispatcher.Publish(ctx, t.ID, notify.EventTournamentActivated, map[string]any{
		"tournament": t,
		"matches":    result.matches,
	})
	for _, participant := range t.Participants {
		s.dispatcher.Notify(ctx, participant, notify.KindBracketReady,
			fmt.Sprintf("The bracket for %s is ready", t.Name))
	}
}
