package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrNotFound = errors.New("requested resource not found")

	// Registration
	ErrCapacityExceeded   = errors.New("tournament is full")
	ErrRegistrationClosed = errors.New("tournament registration is closed")

	// Results
	ErrInvalidWinner       = errors.New("winner is not part of this match")
	ErrAlreadyResolved     = errors.New("match is already resolved")
	ErrMatchNotReady       = errors.New("match does not have two players yet")
	ErrTournamentNotActive = errors.New("tournament is not active")

	// Lifecycle
	ErrInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrMatchesUnresolved       = errors.New("tournament still has unresolved matches")

	ErrValidationFailed = errors.New("validation failed")
	ErrUsernameTaken    = errors.New("username is already in use")

	// Returned when optimistic retries are exhausted
	ErrConflict = errors.New("concurrent update conflict")
)

// ValidationError lists the offending fields of a request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

type validator struct {
	fields map[string]string
}

func (v *validator) check(ok bool, field, msg string) {
	if ok {
		return
	}
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = msg
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
