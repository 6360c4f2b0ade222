package telemetry_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/example/shiftline/internal/telemetry"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	provider := otel.GetTracerProvider()
	propagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagator)
	})
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := telemetry.Setup(context.Background(), telemetry.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatal("expected global provider to be left untouched")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	for _, endpoint := range []string{"http://192.0.2.1:4318", "192.0.2.1:4318"} {
		t.Run(endpoint, func(t *testing.T) {
			restoreGlobals(t)

			// Non-routable address so no actual export happens.
			shutdown, err := telemetry.Setup(context.Background(), telemetry.Options{
				Endpoint:    endpoint,
				ServiceName: "shiftline-test",
				SampleRatio: 0.5,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown error: %v", err)
			}
		})
	}
}
