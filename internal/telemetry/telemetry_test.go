package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
)

func TestDisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tel.Degraded() {
		t.Error("disabled telemetry should not be degraded")
	}

	tracer := tel.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	meter := tel.Meter("test")
	counter, err := meter.Int64Counter("test.counter")
	if err != nil {
		t.Fatalf("Int64Counter: %v", err)
	}
	counter.Add(context.Background(), 1)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestEnabledRequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{Enabled: true})
	if err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestNilReceiverSafe(t *testing.T) {
	var tel *Telemetry
	_ = tel.Tracer("test")
	_ = tel.Meter("test")
	if tel.Degraded() {
		t.Error("nil telemetry should report not degraded")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil: %v", err)
	}
}
