package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/tourney/internal/service"
)

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	WriteJSON(w, status, body)
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	// WriteJSON itself falls back here, so the body is written directly
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":"Internal Server Error"}` + "\n"))
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	writeErrorBody(w, http.StatusBadRequest, errorBody{Error: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	writeErrorBody(w, http.StatusNotFound, errorBody{Error: msg})
}

type errorKind struct {
	err    error
	status int
	code   string
}

var errorKinds = []errorKind{
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrValidationFailed, http.StatusUnprocessableEntity, "validation_failed"},
	{service.ErrInvalidWinner, http.StatusUnprocessableEntity, "invalid_winner"},
	{service.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{service.ErrRegistrationClosed, http.StatusConflict, "registration_closed"},
	{service.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{service.ErrMatchNotReady, http.StatusConflict, "match_not_ready"},
	{service.ErrTournamentNotActive, http.StatusConflict, "tournament_not_active"},
	{service.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{service.ErrMatchesUnresolved, http.StatusConflict, "matches_unresolved"},
	{service.ErrUsernameTaken, http.StatusConflict, "username_taken"},
	{service.ErrConflict, http.StatusConflict, "conflict"},
}

func kindOf(err error) (errorKind, bool) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return errorKind{}, false
}

// StatusFor maps a service error to the HTTP status it is reported with.
func StatusFor(err error) int {
	if k, ok := kindOf(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// WriteError reports a service error. Known kinds are returned to the client with
// their message, anything else is logged and hidden behind a 500.
func WriteError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	k, ok := kindOf(err)
	if !ok {
		InternalServerError(w, msg, err)
		return
	}

	slog.InfoContext(r.Context(), msg, "status", k.status, "error", err)

	body := errorBody{Error: err.Error(), Code: k.code}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	writeErrorBody(w, k.status, body)
}
