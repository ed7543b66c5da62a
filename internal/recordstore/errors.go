// Package recordstore provides content-addressed storage for signed chain records.
package recordstore

import "errors"

var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrIntegrityMismatch indicates stored data doesn't match its reference.
	ErrIntegrityMismatch = errors.New("record integrity mismatch")

	// ErrBadSignature indicates the record's signature does not verify.
	ErrBadSignature = errors.New("bad record signature")

	// ErrInvalidRecord indicates a structurally invalid record.
	ErrInvalidRecord = errors.New("invalid record")
)
