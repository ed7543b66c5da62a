package reference

import (
	"strings"
	"testing"
)

func TestComputeDeterministic(t *testing.T) {
	a := Compute([]byte("hello"))
	b := Compute([]byte("hello"))
	if !Equal(a, b) {
		t.Error("Compute not deterministic")
	}
	c := Compute([]byte("world"))
	if Equal(a, c) {
		t.Error("distinct data produced equal references")
	}
}

func TestHexRoundTrip(t *testing.T) {
	r := Compute([]byte("data"))
	s := Hex(r)
	if len(s) != Size*2 {
		t.Fatalf("Hex length = %d, want %d", len(s), Size*2)
	}
	if s != strings.ToLower(s) {
		t.Error("Hex not lowercase")
	}

	got, err := FromHex(s)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if !Equal(got, r) {
		t.Error("round trip mismatch")
	}
}

func TestFromHexInvalid(t *testing.T) {
	for _, s := range []string{"", "zz", "abcd", strings.Repeat("ab", Size) + "ff"} {
		if _, err := FromHex(s); err == nil {
			t.Errorf("FromHex(%q) succeeded, want error", s)
		}
	}
}

func TestIsZero(t *testing.T) {
	var zero Reference
	if !zero.IsZero() {
		t.Error("zero reference not IsZero")
	}
	if Compute([]byte("x")).IsZero() {
		t.Error("computed reference reported IsZero")
	}
}
