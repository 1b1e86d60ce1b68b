package main

import (
	"net/http"
	"time"

	"github.com/AdamBeresnev/tourney/internal/httputil"
	"github.com/AdamBeresnev/tourney/internal/realtime"
	"github.com/AdamBeresnev/tourney/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

type application struct {
	users         *service.UserService
	tournaments   *service.TournamentService
	registrations *service.RegistrationService
	results       *service.ResultReporter
	hub           *realtime.Hub
}

type createUserRequest struct {
	Username string `json:"username"`
}

type createTournamentRequest struct {
	Name            string     `json:"name"`
	Game            string     `json:"game"`
	Prize           string     `json:"prize"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	MaxParticipants int        `json:"max_participants"`
}

type registerRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type resultRequest struct {
	WinnerID uuid.UUID `json:"winner_id"`
	Score    string    `json:"score"`
}

func parseID(w http.ResponseWriter, r *http.Request, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+entity+" ID", err)
		return uuid.Nil, false
	}
	return id, true
}

func newRouter(app *application, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "Route not found", nil)
	})

	r.Get("/ws/{topic}", app.hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(15 * time.Second))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/users", func(w http.ResponseWriter, r *http.Request) {
			var req createUserRequest
			if err := httputil.ReadJSON(w, r, &req); err != nil {
				httputil.BadRequest(w, err.Error(), err)
				return
			}

			user, err := app.users.CreateUser(r.Context(), req.Username)
			if err != nil {
				httputil.WriteError(w, r, "Failed to create user", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, user)
		})

		r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r, "user")
			if !ok {
				return
			}

			user, err := app.users.GetUser(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, r, "Failed to get user", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, user)
		})

		r.Post("/tournaments", func(w http.ResponseWriter, r *http.Request) {
			var req createTournamentRequest
			if err := httputil.ReadJSON(w, r, &req); err != nil {
				httputil.BadRequest(w, err.Error(), err)
				return
			}

			tournament, err := app.tournaments.CreateTournament(r.Context(), service.CreateTournamentInput{
				Name:            req.Name,
				Game:            req.Game,
				Prize:           req.Prize,
				StartDate:       req.StartDate,
				EndDate:         req.EndDate,
				MaxParticipants: req.MaxParticipants,
			})
			if err != nil {
				httputil.WriteError(w, r, "Failed to create tournament", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, tournament)
		})

		r.Get("/tournaments", func(w http.ResponseWriter, r *http.Request) {
			tournaments, err := app.tournaments.ListTournaments(r.Context())
			if err != nil {
				httputil.WriteError(w, r, "Failed to list tournaments", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, tournaments)
		})

		r.Route("/tournaments/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "tournament")
				if !ok {
					return
				}

				data, err := app.tournaments.GetTournamentData(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, r, "Failed to get tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, data)
			})

			r.Post("/registrations", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "tournament")
				if !ok {
					return
				}
				var req registerRequest
				if err := httputil.ReadJSON(w, r, &req); err != nil {
					httputil.BadRequest(w, err.Error(), err)
					return
				}

				tournament, err := app.registrations.Register(r.Context(), id, req.UserID)
				if err != nil {
					httputil.WriteError(w, r, "Failed to register", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournament)
			})

			r.Get("/matches", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "tournament")
				if !ok {
					return
				}

				matches, err := app.tournaments.ListMatches(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, r, "Failed to list matches", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, matches)
			})

			r.Post("/complete", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "tournament")
				if !ok {
					return
				}

				tournament, err := app.tournaments.CompleteTournament(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, r, "Failed to complete tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournament)
			})

			r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "tournament")
				if !ok {
					return
				}

				tournament, err := app.tournaments.CancelTournament(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, r, "Failed to cancel tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournament)
			})
		})

		r.Route("/matches/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "match")
				if !ok {
					return
				}

				match, err := app.results.GetMatch(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, r, "Failed to get match", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, match)
			})

			r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "match")
				if !ok {
					return
				}

				match, err := app.results.StartMatch(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, r, "Failed to start match", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, match)
			})

			r.Post("/result", func(w http.ResponseWriter, r *http.Request) {
				id, ok := parseID(w, r, "match")
				if !ok {
					return
				}
				var req resultRequest
				if err := httputil.ReadJSON(w, r, &req); err != nil {
					httputil.BadRequest(w, err.Error(), err)
					return
				}

				outcome, err := app.results.ReportResult(r.Context(), id, req.WinnerID, req.Score)
				if err != nil {
					httputil.WriteError(w, r, "Failed to report result", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, outcome)
			})
		})
	})

	return r
}
