package status

import (
	"errors"
	"testing"
	"time"

	corkerrors "github.com/corknet/cork-node/pkg/errors"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour).UnixMilli()
	past := now.Add(-time.Hour).UnixMilli()

	tests := []struct {
		name    string
		status  Status
		wantErr bool
	}{
		{"pending", Status{Type: Pending}, false},
		{"accepted", Status{Type: Accepted}, false},
		{"rejected with reason", Status{Type: Rejected, Reason: "spam"}, false},
		{"rejected without reason", Status{Type: Rejected}, true},
		{"temp suspension", Status{Type: SuspendedTemporarily, Reason: "cooldown", SuspendedUntil: future}, false},
		{"temp suspension without deadline", Status{Type: SuspendedTemporarily, Reason: "cooldown"}, true},
		{"temp suspension in the past", Status{Type: SuspendedTemporarily, Reason: "cooldown", SuspendedUntil: past}, true},
		{"temp suspension without reason", Status{Type: SuspendedTemporarily, SuspendedUntil: future}, true},
		{"indefinite suspension", Status{Type: SuspendedIndefinitely, Reason: "abuse"}, false},
		{"indefinite suspension without reason", Status{Type: SuspendedIndefinitely}, true},
		{"deadline on non-suspension", Status{Type: Accepted, SuspendedUntil: future}, true},
		{"unknown type", Status{Type: "banned"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.status.Validate(now)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, corkerrors.ErrInvalidTransition) {
				t.Errorf("validation errors should wrap ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	expired := Status{Type: SuspendedTemporarily, Reason: "x", SuspendedUntil: now.Add(-time.Minute).UnixMilli()}
	if !expired.IsExpired(now) {
		t.Error("past deadline should be expired")
	}

	active := Status{Type: SuspendedTemporarily, Reason: "x", SuspendedUntil: now.Add(time.Minute).UnixMilli()}
	if active.IsExpired(now) {
		t.Error("future deadline should not be expired")
	}

	indefinite := Status{Type: SuspendedIndefinitely, Reason: "x"}
	if indefinite.IsExpired(now) {
		t.Error("indefinite suspension never expires")
	}

	accepted := Status{Type: Accepted}
	if accepted.IsExpired(now) {
		t.Error("non-suspension statuses never expire")
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		t    Type
		want Category
	}{
		{Pending, CategoryPending},
		{Accepted, CategoryAccepted},
		{Rejected, CategoryRejected},
		{SuspendedTemporarily, CategorySuspended},
		{SuspendedIndefinitely, CategorySuspended},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.t); got != tt.want {
			t.Errorf("CategoryOf(%s) = %s, want %s", tt.t, got, tt.want)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	s := Status{Type: SuspendedTemporarily, Reason: "cooldown", SuspendedUntil: 12345}

	body, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != s {
		t.Errorf("round trip mismatch: %+v vs %+v", got, s)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"vaporized"}`))
	if !errors.Is(err, corkerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
