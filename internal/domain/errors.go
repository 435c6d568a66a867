package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("order was modified concurrently")
)

const (
	ReasonOutOfRange        = "out_of_range"
	ReasonInvalidTransition = "invalid_transition"
	ReasonTerminalState     = "terminal_state"
)

// ValidationError is input-level and never retried.
type ValidationError struct {
	Field  string
	Reason string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

type TransitionCode string

const (
	InvalidTransition TransitionCode = "InvalidTransition"
	TerminalState     TransitionCode = "TerminalState"
)

type TransitionError struct {
	Code TransitionCode
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Code, e.From, e.To)
}

// Reason is the wire form of the code.
func (e *TransitionError) Reason() string {
	if e.Code == TerminalState {
		return ReasonTerminalState
	}
	return ReasonInvalidTransition
}

type AuthorizationError struct {
	Scope  string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized for scope %q: %s", e.Scope, e.Reason)
}

type SessionExpiredError struct {
	SessionID string
	ExpiresAt time.Time
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session %s expired at %s", e.SessionID, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// TransportError covers network and 5xx failures; callers retry on the next tick only.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsTransition(err error) bool {
	var t *TransitionError
	return errors.As(err, &t)
}

func IsAuthorization(err error) bool {
	var a *AuthorizationError
	return errors.As(err, &a)
}

func IsSessionExpired(err error) bool {
	var s *SessionExpiredError
	return errors.As(err, &s)
}

func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
