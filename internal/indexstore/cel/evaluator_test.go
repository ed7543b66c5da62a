package cel

import (
	"context"
	"errors"
	"testing"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore/physical"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return eval
}

func TestMatchLabels(t *testing.T) {
	eval := newTestEvaluator(t)
	ctx := context.Background()

	entry := &physical.Entry{
		Ref:       reference.Compute([]byte("e1")),
		Labels:    map[string]string{"kind": "entity", "category": "pending"},
		Timestamp: 1000,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`labels["category"] == "pending"`, true},
		{`labels["category"] == "accepted"`, false},
		{`"kind" in labels && labels["kind"] == "entity"`, true},
		{`timestamp > 500`, true},
		{`timestamp > 2000`, false},
	}

	for _, tt := range tests {
		got, err := eval.Match(ctx, tt.expr, entry)
		if err != nil {
			t.Errorf("Match(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestCompileInvalid(t *testing.T) {
	eval := newTestEvaluator(t)
	ctx := context.Background()

	_, err := eval.Compile(ctx, `labels[`)
	if !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("expected ErrInvalidExpression, got %v", err)
	}
}

func TestCompileCache(t *testing.T) {
	eval := newTestEvaluator(t)
	ctx := context.Background()

	p1, err := eval.Compile(ctx, `timestamp > 0`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p2, err := eval.Compile(ctx, `timestamp > 0`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p1 != p2 {
		t.Error("compiled program not cached")
	}
}

func TestEvalBatch(t *testing.T) {
	eval := newTestEvaluator(t)
	ctx := context.Background()

	entries := []*physical.Entry{
		{Ref: reference.Compute([]byte("a")), Labels: map[string]string{"category": "pending"}, Timestamp: 1},
		{Ref: reference.Compute([]byte("b")), Labels: map[string]string{"category": "accepted"}, Timestamp: 2},
		{Ref: reference.Compute([]byte("c")), Labels: map[string]string{"category": "pending"}, Timestamp: 3},
	}

	prg, err := eval.Compile(ctx, `labels["category"] == "pending"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	matches, err := eval.EvalBatch(ctx, prg, entries)
	if err != nil {
		t.Fatalf("EvalBatch: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(matches))
	}
}

func TestEvalNonBoolExpression(t *testing.T) {
	eval := newTestEvaluator(t)
	ctx := context.Background()

	entry := &physical.Entry{Ref: reference.Compute([]byte("e")), Timestamp: 1}

	prg, err := eval.Compile(ctx, `timestamp + 1`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := eval.Eval(ctx, prg, entry); !errors.Is(err, ErrEvaluationFailed) {
		t.Errorf("expected ErrEvaluationFailed, got %v", err)
	}
}
