package token

import (
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fansoftheone/engine/internal/artifact"
)

func redemptionCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "engine.token.redemptions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestRedeem_RecordsOutcomes(t *testing.T) {
	f := newFixture(t)

	reader := sdkmetric.NewManualReader()
	sr := tracetest.NewSpanRecorder()
	tokens := NewService(f.store,
		WithClock(f.clock.Now),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))),
	)

	a := f.convert(t)

	first, err := tokens.Issue(ctx, a.ID, 60)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := tokens.Redeem(ctx, first.Token); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if _, err := tokens.Redeem(ctx, first.Token); err != ErrInvalidToken {
		t.Fatalf("second Redeem err = %v, want ErrInvalidToken", err)
	}

	second, err := tokens.Issue(ctx, a.ID, MinTTLSeconds)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.clock.Advance(MinTTLSeconds * time.Second)
	if _, err := tokens.Redeem(ctx, second.Token); err != ErrTokenExpired {
		t.Fatalf("expired Redeem err = %v, want ErrTokenExpired", err)
	}

	counts := redemptionCounts(t, reader)
	want := map[string]int64{"redeemed": 1, "invalid": 1, "expired": 1}
	for outcome, n := range want {
		if counts[outcome] != n {
			t.Errorf("%s = %d, want %d (all: %v)", outcome, counts[outcome], n, counts)
		}
	}

	var redeemSpans, issueSpans int
	for _, span := range sr.Ended() {
		switch span.Name() {
		case "token.Redeem":
			redeemSpans++
		case "token.Issue":
			issueSpans++
		}
	}
	if redeemSpans != 3 || issueSpans != 2 {
		t.Errorf("spans: redeem=%d issue=%d, want 3 and 2", redeemSpans, issueSpans)
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "redeemed"},
		{ErrInvalidToken, "invalid"},
		{ErrTokenExpired, "expired"},
		{ErrArtifactMissing, "artifact_missing"},
		{artifact.ErrNotFound, "error"},
	}
	for _, tt := range tests {
		if got := outcomeLabel(tt.err); got != tt.want {
			t.Errorf("outcomeLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
