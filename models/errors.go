package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoActiveGame is returned on player operations when no game is
	// currently open for submissions. Callers surface it as an explicit
	// state, not as a failure.
	ErrNoActiveGame = errors.New("no active game")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// FieldErrors collects per-field validation messages. All violated fields of
// an entity are reported together instead of stopping at the first one.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return strings.Join(parts, "; ")
}

// ConflictError is a uniqueness violation detected at commit time, currently
// only the single-active-game constraint.
type ConflictError struct {
	Fields FieldErrors
}

func (e *ConflictError) Error() string {
	return e.Fields.Error()
}

func ErrActiveGameExists() *ConflictError {
	return &ConflictError{Fields: FieldErrors{"active": "There is an active game already."}}
}
