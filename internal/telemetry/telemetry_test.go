package telemetry

import (
	"context"
	"testing"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		host     string
		insecure bool
	}{
		{"otel-collector:4318", "otel-collector:4318", true},
		{"http://otel-collector:4318", "otel-collector:4318", true},
		{"http://otel-collector:4318/", "otel-collector:4318", true},
		{"https://otlp.example.com", "otlp.example.com", false},
	}
	for _, tt := range tests {
		host, insecure := normalizeEndpoint(tt.in)
		if host != tt.host || insecure != tt.insecure {
			t.Errorf("normalizeEndpoint(%q) = (%q, %v), want (%q, %v)", tt.in, host, insecure, tt.host, tt.insecure)
		}
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_Enabled(t *testing.T) {
	// Exporters connect lazily, so an unreachable collector is not an error here.
	shutdown, err := Setup(context.Background(), "127.0.0.1:1", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Flushing to a dead collector with a cancelled context may fail; it must not hang.
	_ = shutdown(ctx)
}
