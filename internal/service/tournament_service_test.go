package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/AdamBeresnev/tourney/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTournamentDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Now().Add(72 * time.Hour).Truncate(time.Second).In(time.FixedZone("CET", 3600))
	created, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{
		Name:      "  Autumn Open  ",
		Game:      "Tekken",
		StartDate: start,
	})
	require.NoError(t, err)

	assert.Equal(t, "Autumn Open", created.Name)
	assert.Equal(t, "autumn-open", created.Slug)
	assert.Equal(t, bracket.TournamentRegistration, created.Status)
	assert.Equal(t, bracket.DefaultMaxParticipants, created.MaxParticipants)
	assert.Equal(t, time.UTC, created.StartDate.Location())
	assert.NotNil(t, created.Participants)
	assert.Empty(t, created.Participants)

	stored, err := f.store.GetTournament(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
	assert.Equal(t, "autumn-open", stored.Slug)
	assert.True(t, start.Equal(stored.StartDate))
	assert.Nil(t, stored.EndDate)
}

func TestCreateTournamentValidation(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(time.Hour)
	before := start.Add(-time.Minute)

	valid := func() CreateTournamentInput {
		return CreateTournamentInput{Name: "Cup", Game: "Go", StartDate: start, MaxParticipants: 8}
	}

	tests := []struct {
		name   string
		modify func(in *CreateTournamentInput)
		field  string
	}{
		{"missing name", func(in *CreateTournamentInput) { in.Name = "   " }, "name"},
		{"long name", func(in *CreateTournamentInput) { in.Name = strings.Repeat("n", 101) }, "name"},
		{"missing game", func(in *CreateTournamentInput) { in.Game = "" }, "game"},
		{"long prize", func(in *CreateTournamentInput) { in.Prize = strings.Repeat("$", 201) }, "prize"},
		{"missing start", func(in *CreateTournamentInput) { in.StartDate = time.Time{} }, "start_date"},
		{"start in the past", func(in *CreateTournamentInput) { in.StartDate = time.Now().Add(-time.Hour) }, "start_date"},
		{"end before start", func(in *CreateTournamentInput) { in.EndDate = &before }, "end_date"},
		{"one participant", func(in *CreateTournamentInput) { in.MaxParticipants = 1 }, "max_participants"},
		{"too many participants", func(in *CreateTournamentInput) { in.MaxParticipants = bracket.MaxParticipantsLimit + 1 }, "max_participants"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.modify(&in)

			_, err := f.tournaments.CreateTournament(context.Background(), in)
			require.ErrorIs(t, err, ErrValidationFailed)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	list, err := f.tournaments.ListTournaments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListTournaments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createTournament(t, 4)
	second := f.createTournament(t, 8)
	player := f.createUsers(t, 1)[0]
	_, err := f.registrations.Register(ctx, second.ID, player)
	require.NoError(t, err)

	list, err := f.tournaments.ListTournaments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[uuid.UUID]bracket.Tournament{}
	for _, tournament := range list {
		byID[tournament.ID] = tournament
	}
	assert.Empty(t, byID[first.ID].Participants)
	assert.Equal(t, []uuid.UUID{player}, byID[second.ID].Participants)
}

func TestGetTournamentData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := newFourPlayerBracket(t, f)

	data, err := f.tournaments.GetTournamentData(ctx, b.tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, b.tournament.ID, data.Tournament.ID)
	assert.Equal(t, b.players, data.Tournament.Participants)
	assert.Len(t, data.Matches, 3)
	require.Len(t, data.Rounds, 2)
	assert.Len(t, data.Rounds[0].Matches, 2)
	assert.Equal(t, b.final.ID, data.Rounds[1].Matches[0].ID)
	require.NotNil(t, data.NextMatchID)
	assert.Equal(t, b.semi1.ID, *data.NextMatchID)

	_, err = f.results.ReportResult(ctx, b.semi1.ID, b.players[0], "")
	require.NoError(t, err)

	data, err = f.tournaments.GetTournamentData(ctx, b.tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, b.semi2.ID, *data.NextMatchID)

	_, err = f.tournaments.GetTournamentData(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := newFourPlayerBracket(t, f)

	matches, err := f.tournaments.ListMatches(ctx, b.tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, b.semi1.ID, matches[0].ID)
	assert.Equal(t, b.final.ID, matches[2].ID)

	empty := f.createTournament(t, 4)
	matches, err = f.tournaments.ListMatches(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = f.tournaments.ListMatches(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteTournament(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := newFourPlayerBracket(t, f)

	_, err := f.tournaments.CompleteTournament(ctx, b.tournament.ID)
	assert.ErrorIs(t, err, ErrMatchesUnresolved)

	_, err = f.results.ReportResult(ctx, b.semi1.ID, b.players[0], "")
	require.NoError(t, err)
	_, err = f.results.ReportResult(ctx, b.semi2.ID, b.players[2], "")
	require.NoError(t, err)
	_, err = f.results.ReportResult(ctx, b.final.ID, b.players[2], "")
	require.NoError(t, err)

	done := time.Date(2026, 12, 24, 20, 0, 0, 0, time.UTC)
	f.tournaments.now = func() time.Time { return done }

	completed, err := f.tournaments.CompleteTournament(ctx, b.tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentCompleted, completed.Status)
	require.NotNil(t, completed.EndDate)
	assert.True(t, done.Equal(*completed.EndDate))
	assert.Equal(t, 1, f.recorder.eventCount(notify.EventTournamentCompleted))

	_, err = f.tournaments.CompleteTournament(ctx, b.tournament.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.tournaments.CompleteTournament(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	registering := f.createTournament(t, 4)
	_, err = f.tournaments.CompleteTournament(ctx, registering.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancelTournamentDuringRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := f.createTournament(t, 4)
	players := f.createUsers(t, 2)
	for _, p := range players {
		_, err := f.registrations.Register(ctx, tournament.ID, p)
		require.NoError(t, err)
	}

	cancelled, err := f.tournaments.CancelTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentCancelled, cancelled.Status)
	for _, p := range players {
		assert.Equal(t, 1, f.recorder.notificationsFor(p, notify.KindTournamentCancelled))
	}

	_, err = f.tournaments.CancelTournament(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancelActiveTournamentCancelsOpenMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := newFourPlayerBracket(t, f)

	_, err := f.results.ReportResult(ctx, b.semi1.ID, b.players[1], "")
	require.NoError(t, err)
	_, err = f.results.StartMatch(ctx, b.semi2.ID)
	require.NoError(t, err)

	_, err = f.tournaments.CancelTournament(ctx, b.tournament.ID)
	require.NoError(t, err)

	assert.Equal(t, bracket.MatchCompleted, f.getMatch(t, b.semi1.ID).Status)
	assert.Equal(t, bracket.MatchCancelled, f.getMatch(t, b.semi2.ID).Status)
	assert.Equal(t, bracket.MatchCancelled, f.getMatch(t, b.final.ID).Status)

	_, err = f.results.ReportResult(ctx, b.semi2.ID, b.players[2], "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestExpireRegistrations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.createTournament(t, 4)
	later, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{
		Name:      "Next Month",
		Game:      "Chess",
		StartDate: time.Now().Add(30 * 24 * time.Hour),
		EndDate:   utils.Ptr(time.Now().Add(31 * 24 * time.Hour)),
	})
	require.NoError(t, err)

	running := newFourPlayerBracket(t, f)

	f.tournaments.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	expired, err := f.tournaments.ExpireRegistrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	for id, want := range map[uuid.UUID]bracket.TournamentStatus{
		stale.ID:              bracket.TournamentCancelled,
		later.ID:              bracket.TournamentRegistration,
		running.tournament.ID: bracket.TournamentActive,
	} {
		stored, err := f.store.GetTournament(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status)
	}

	expired, err = f.tournaments.ExpireRegistrations(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}
