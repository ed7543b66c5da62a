package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("info", "json", &buf)

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("warn", "json", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn not logged")
	}
}

func TestOperationMetrics(t *testing.T) {
	m := NewMetrics()

	op, _ := StartOperation(context.Background(), m, "test.op")
	op.End(nil)

	op, _ = StartOperation(context.Background(), m, "test.op")
	op.End(errors.New("boom"))

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "cork_operation_total" {
			found = true
			var total float64
			for _, metric := range mf.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
			if total != 2 {
				t.Errorf("cork_operation_total = %v, want 2", total)
			}
		}
	}
	if !found {
		t.Error("cork_operation_total not registered")
	}
}

func TestShutdownLIFO(t *testing.T) {
	var order []string
	sc := &ShutdownCoordinator{}
	sc.Register("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	sc.Register("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := sc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("shutdown order = %v, want [second first]", order)
	}
}

func TestNewNoopTracing(t *testing.T) {
	obs, err := New(context.Background(), ObsConfig{
		LogLevel:    "info",
		LogFormat:   "json",
		ServiceName: "cork-test",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = obs.Close(context.Background()) })

	if obs.TracerProvider == nil {
		t.Error("TracerProvider is nil")
	}
	if obs.Metrics == nil {
		t.Error("Metrics is nil")
	}
}
