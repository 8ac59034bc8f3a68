package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerInstallsProvider(t *testing.T) {
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	shutdown, err := InitTracer(context.Background(), "127.0.0.1:4317", "wattflow-test")
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	if otel.GetTracerProvider() == orig {
		t.Fatalf("expected a new global tracer provider")
	}
	// no spans were recorded, so shutdown has nothing to export
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
