// Package errors provides shared sentinel errors used throughout the cork ecosystem.
package errors

import stderrors "errors"

var (
	// ErrNotFound indicates the requested entity or chain root was not found.
	ErrNotFound = stderrors.New("not found")

	// ErrStaleReference indicates the supplied previous reference no longer
	// matches the chain tip. Callers must refetch the latest reference and
	// retry; the store never retries internally.
	ErrStaleReference = stderrors.New("stale reference")

	// ErrUnauthorized indicates the caller failed the authorization guard.
	ErrUnauthorized = stderrors.New("unauthorized")

	// ErrInvalidTransition indicates a status transition is missing a required
	// field or carries an invalid one.
	ErrInvalidTransition = stderrors.New("invalid transition")

	// ErrInvalidInput indicates the input is invalid.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrAlreadyExists indicates the resource already exists.
	ErrAlreadyExists = stderrors.New("already exists")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = stderrors.New("closed")
)
