package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type BracketGenerator struct {
	store *store.TournamentStore
	// Uniform int in [0, n), swapped out in tests
	intn func(n int) int
}

func NewBracketGenerator(store *store.TournamentStore) *BracketGenerator {
	return &BracketGenerator{store: store, intn: rand.IntN}
}

// GenerateRound1 shuffles the participants and pairs them off in order. With an odd count
// the participant left over after shuffling gets no round 1 match and is returned as the bye.
// The input slice is not modified.
func (g *BracketGenerator) GenerateRound1(tournamentID uuid.UUID, participantIDs []uuid.UUID) ([]bracket.Match, *uuid.UUID) {
	seeded := make([]uuid.UUID, len(participantIDs))
	copy(seeded, participantIDs)
	bracket.Shuffle(seeded, g.intn)

	pairs, bye := bracket.PairConsecutive(seeded)

	matches := make([]bracket.Match, 0, len(pairs))
	for i, pair := range pairs {
		p1, p2 := pair[0], pair[1]
		matches = append(matches, bracket.Match{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			RoundNumber:  1,
			MatchOrder:   i + 1,
			Player1ID:    &p1,
			Player2ID:    &p2,
			Status:       bracket.MatchPending,
		})
	}

	return matches, bye
}

// GenerateShells creates the empty matches of every round after the first.
func (g *BracketGenerator) GenerateShells(tournamentID uuid.UUID, participantCount int) []bracket.Match {
	var shells []bracket.Match

	sizes := bracket.RoundSizes(participantCount)
	for r := 1; r < len(sizes); r++ {
		for i := 0; i < sizes[r]; i++ {
			shells = append(shells, bracket.Match{
				ID:           uuid.New(),
				TournamentID: tournamentID,
				RoundNumber:  r + 1,
				MatchOrder:   i + 1,
				Status:       bracket.MatchPending,
			})
		}
	}

	return shells
}

// Generate builds the full bracket for the tournament's current participant list and
// persists it in the caller's transaction. A round 1 bye goes straight into the first
// open slot of round 2.
func (g *BracketGenerator) Generate(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) ([]bracket.Match, error) {
	if len(tournament.Participants) < bracket.MinParticipants {
		return nil, fmt.Errorf("cannot generate bracket with %d participants", len(tournament.Participants))
	}

	round1, bye := g.GenerateRound1(tournament.ID, tournament.Participants)
	shells := g.GenerateShells(tournament.ID, len(tournament.Participants))

	if bye != nil {
		placed := false
		for i := range shells {
			if shells[i].RoundNumber == 2 && shells[i].FillOpenSlot(*bye) != 0 {
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("no round 2 slot for bye %s", *bye)
		}
	}

	matches := append(round1, shells...)
	if err := g.store.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	return matches, nil
}
