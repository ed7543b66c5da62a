// Package status defines the moderation status attached to entities and the
// rules for moving between statuses.
package status

import (
	"encoding/json"
	"fmt"
	"time"

	corkerrors "github.com/corknet/cork-node/pkg/errors"
)

// Kind is the record kind of status revisions.
const Kind = "entity-status"

// Type is a moderation status.
type Type string

const (
	Pending               Type = "pending"
	Accepted              Type = "accepted"
	Rejected              Type = "rejected"
	SuspendedTemporarily  Type = "suspended_temporarily"
	SuspendedIndefinitely Type = "suspended_indefinitely"
)

// Types lists all valid status types.
func Types() []Type {
	return []Type{Pending, Accepted, Rejected, SuspendedTemporarily, SuspendedIndefinitely}
}

// Valid reports whether t is a known status type.
func (t Type) Valid() bool {
	switch t {
	case Pending, Accepted, Rejected, SuspendedTemporarily, SuspendedIndefinitely:
		return true
	}
	return false
}

// Category is the coarse bucket a status maps into for listing.
type Category string

const (
	CategoryPending   Category = "pending"
	CategoryAccepted  Category = "accepted"
	CategoryRejected  Category = "rejected"
	CategorySuspended Category = "suspended"
)

// Categories lists all categories.
func Categories() []Category {
	return []Category{CategoryPending, CategoryAccepted, CategoryRejected, CategorySuspended}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPending, CategoryAccepted, CategoryRejected, CategorySuspended:
		return true
	}
	return false
}

// CategoryOf maps a status type to its listing category. Both suspension
// flavors share one bucket.
func CategoryOf(t Type) Category {
	switch t {
	case Accepted:
		return CategoryAccepted
	case Rejected:
		return CategoryRejected
	case SuspendedTemporarily, SuspendedIndefinitely:
		return CategorySuspended
	default:
		return CategoryPending
	}
}

// Status is one revision of an entity's moderation state.
type Status struct {
	Type           Type   `json:"type"`
	Reason         string `json:"reason,omitempty"`
	SuspendedUntil int64  `json:"suspended_until,omitempty"` // unix milliseconds
}

// Validate checks the internal consistency of a status revision.
// Reason is required when the status removes or suspends visibility;
// a deadline is required for temporary suspension and forbidden elsewhere.
func (s Status) Validate(now time.Time) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown status type %q", corkerrors.ErrInvalidTransition, s.Type)
	}

	switch s.Type {
	case Rejected, SuspendedTemporarily, SuspendedIndefinitely:
		if s.Reason == "" {
			return fmt.Errorf("%w: %s requires a reason", corkerrors.ErrInvalidTransition, s.Type)
		}
	}

	if s.Type == SuspendedTemporarily {
		if s.SuspendedUntil <= 0 {
			return fmt.Errorf("%w: temporary suspension requires suspended_until", corkerrors.ErrInvalidTransition)
		}
		if s.SuspendedUntil <= now.UnixMilli() {
			return fmt.Errorf("%w: suspended_until must be in the future", corkerrors.ErrInvalidTransition)
		}
	} else if s.SuspendedUntil != 0 {
		return fmt.Errorf("%w: suspended_until is only valid with temporary suspension", corkerrors.ErrInvalidTransition)
	}

	return nil
}

// IsExpired reports whether a temporary suspension's deadline has passed.
// Only temporary suspensions expire; all other statuses hold until revised.
func (s Status) IsExpired(now time.Time) bool {
	return s.Type == SuspendedTemporarily && s.SuspendedUntil > 0 && s.SuspendedUntil <= now.UnixMilli()
}

// Encode returns the status revision as a record body.
func (s Status) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return data, nil
}

// Decode parses a status revision from a record body.
func Decode(body json.RawMessage) (Status, error) {
	var s Status
	if err := json.Unmarshal(body, &s); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	if !s.Type.Valid() {
		return Status{}, fmt.Errorf("%w: unknown status type %q", corkerrors.ErrInvalidInput, s.Type)
	}
	return s, nil
}
