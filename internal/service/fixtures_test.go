package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/db"
	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/AdamBeresnev/tourney/internal/store"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_txlock=immediate")
	require.NoError(t, err, "Failed to connect to in-memory DB")

	// Every pooled connection would get its own in-memory database
	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

// setupFileDB opens a temporary database file with the production DSN. Unlike the
// in-memory database it has a real connection pool, so concurrent transactions
// contend for the write lock.
func setupFileDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "tourney_test.db"))
	require.NoError(t, err, "Failed to open file DB")
	require.NoError(t, db.RunMigrations(database.DB), "Failed to apply migrations")

	return database
}

type notification struct {
	UserID uuid.UUID
	Kind   notify.Kind
	Text   string
}

// recorder captures everything the services send out.
type recorder struct {
	mu            sync.Mutex
	notifications []notification
	events        []notify.Event
	fail          bool
}

func (r *recorder) Notify(_ context.Context, userID uuid.UUID, kind notify.Kind, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("notifier down")
	}
	r.notifications = append(r.notifications, notification{UserID: userID, Kind: kind, Text: text})
	return nil
}

func (r *recorder) Publish(_ context.Context, _ string, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broadcaster down")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) eventCount(eventType notify.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) notificationsFor(userID uuid.UUID, kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notifications {
		if note.UserID == userID && note.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	db            *sqlx.DB
	store         *store.TournamentStore
	users         *store.UserStore
	recorder      *recorder
	generator     *BracketGenerator
	tournaments   *TournamentService
	registrations *RegistrationService
	results       *ResultReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, setupTestDB(t))
}

// newFileFixture is for tests that need transactions running side by side.
func newFileFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, setupFileDB(t))
}

func newFixtureOn(t *testing.T, database *sqlx.DB) *fixture {
	t.Helper()
	t.Cleanup(func() { database.Close() })

	tournamentStore := store.NewTournamentStore(database)
	userStore := store.NewUserStore(database)
	rec := &recorder{}
	dispatcher := NewDispatcher(rec, rec)
	generator := NewBracketGenerator(tournamentStore)

	return &fixture{
		db:            database,
		store:         tournamentStore,
		users:         userStore,
		recorder:      rec,
		generator:     generator,
		tournaments:   NewTournamentService(database, tournamentStore, dispatcher),
		registrations: NewRegistrationService(database, tournamentStore, userStore, generator, dispatcher),
		results:       NewResultReporter(database, tournamentStore, dispatcher),
	}
}

func newIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func (f *fixture) createUsers(t *testing.T, n int) []uuid.UUID {
	t.Helper()

	ids := newIDs(n)
	for _, id := range ids {
		user := &users.User{ID: id, Username: "player-" + id.String()[:8]}
		require.NoError(t, f.users.CreateUser(context.Background(), user))
	}
	return ids
}

func (f *fixture) createTournament(t *testing.T, maxParticipants int) *bracket.Tournament {
	t.Helper()

	tournament, err := f.tournaments.CreateTournament(context.Background(), CreateTournamentInput{
		Name:            "Friday Night Cup",
		Game:            "Street Fighter",
		Prize:           "$100",
		StartDate:       time.Now().Add(24 * time.Hour),
		MaxParticipants: maxParticipants,
	})
	require.NoError(t, err)
	return tournament
}

// insertTournament writes a tournament with the given participants straight to the store.
func (f *fixture) insertTournament(t *testing.T, status bracket.TournamentStatus, maxParticipants int, participants []uuid.UUID) *bracket.Tournament {
	t.Helper()
	ctx := context.Background()

	tournament := &bracket.Tournament{
		ID:              uuid.New(),
		Name:            "Seeded Cup",
		Game:            "Chess",
		Status:          status,
		StartDate:       time.Now().UTC().Add(time.Hour),
		MaxParticipants: maxParticipants,
		Participants:    participants,
		CreatedAt:       time.Now().UTC(),
	}

	tx, err := f.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateTournament(ctx, tx, tournament))
	for i, p := range participants {
		require.NoError(t, f.store.AddParticipant(ctx, tx, tournament.ID, p, i+1))
	}
	require.NoError(t, tx.Commit())

	return tournament
}

func (f *fixture) insertMatches(t *testing.T, matches ...bracket.Match) {
	t.Helper()
	ctx := context.Background()

	tx, err := f.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateMatches(ctx, tx, matches))
	require.NoError(t, tx.Commit())
}

func newMatch(tournamentID uuid.UUID, round, order int, p1, p2 *uuid.UUID) bracket.Match {
	return bracket.Match{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		RoundNumber:  round,
		MatchOrder:   order,
		Player1ID:    p1,
		Player2ID:    p2,
		Status:       bracket.MatchPending,
	}
}

func (f *fixture) getMatch(t *testing.T, id uuid.UUID) *bracket.Match {
	t.Helper()

	m, err := f.store.GetMatch(context.Background(), id)
	require.NoError(t, err)
	return m
}

// playOut reports player 1 as the winner of every playable match until none are left.
// Returns the outcomes in the order they were reported.
func (f *fixture) playOut(t *testing.T, tournamentID uuid.UUID) []*ReportOutcome {
	t.Helper()
	ctx := context.Background()

	var outcomes []*ReportOutcome
	for {
		matches, err := f.store.GetMatches(ctx, tournamentID)
		require.NoError(t, err)

		var ready *bracket.Match
		for i := range matches {
			if !matches[i].Resolved() && !matches[i].HasOpenSlot() {
				ready = &matches[i]
				break
			}
		}
		if ready == nil {
			return outcomes
		}

		outcome, err := f.results.ReportResult(ctx, ready.ID, *ready.Player1ID, "2-0")
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}
}
