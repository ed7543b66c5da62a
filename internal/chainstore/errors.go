// Package chainstore manages revision chains of signed records with
// optimistic concurrency and deterministic fork resolution.
package chainstore

import (
	"errors"

	corkerrors "github.com/corknet/cork-node/pkg/errors"
)

var (
	// ErrNotFound indicates the requested chain has no records.
	ErrNotFound = corkerrors.ErrNotFound

	// ErrStaleReference indicates an append presumed a tip that is no
	// longer current. Callers refetch the latest reference and retry;
	// the store never retries internally.
	ErrStaleReference = corkerrors.ErrStaleReference

	// ErrWrongChain indicates the presumed tip belongs to a different chain.
	ErrWrongChain = errors.New("reference belongs to a different chain")
)
