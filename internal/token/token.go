// Package token issues and redeems single-use, time-limited download tokens.
//
// Redemption burns the token row whenever it is found, whatever the outcome:
// a token that is expired, or whose artifact has disappeared, is deleted on
// first access just like one that is successfully redeemed. A token can
// therefore never be redeemed twice, and every attempt after the first
// reports ErrInvalidToken.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/fansoftheone/engine/internal/artifact"
	"github.com/fansoftheone/engine/internal/bundle"
	"github.com/fansoftheone/engine/internal/storage"
)

// TTL bounds, in seconds.
const (
	MinTTLSeconds     = 30
	MaxTTLSeconds     = 3600
	DefaultTTLSeconds = 300
)

var (
	// ErrInvalidToken means no token row exists (never issued, or already burned).
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired means the row existed but its expiry had passed. The row is burned.
	ErrTokenExpired = errors.New("token expired")
	// ErrArtifactMissing means the row existed but its artifact did not. The row is burned.
	ErrArtifactMissing = errors.New("artifact not found")
)

// Download is the result of a successful redemption.
type Download struct {
	Artifact artifact.Artifact
	Archive  []byte
	Filename string
}

const instrumentationName = "github.com/fansoftheone/engine/internal/token"

type Service struct {
	store    *storage.Store
	now      func() time.Time
	newToken func() string

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	redemptions    metric.Int64Counter
}

type Option func(*Service)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

func NewService(store *storage.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		now:            time.Now,
		newToken:       func() string { return uuid.New().String() },
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	counter, err := s.meterProvider.Meter(instrumentationName).Int64Counter(
		"engine.token.redemptions",
		metric.WithDescription("Download token redemption attempts by outcome."),
	)
	if err != nil {
		otel.Handle(err)
		counter = noop.Int64Counter{}
	}
	s.redemptions = counter
	return s
}

// Issue creates a token for an existing artifact, valid for ttlSeconds.
// A ttl outside [MinTTLSeconds, MaxTTLSeconds] yields *artifact.ValidationError;
// an unknown artifact yields artifact.ErrNotFound. Neither creates a token.
func (s *Service) Issue(ctx context.Context, artifactID string, ttlSeconds int) (storage.DownloadToken, error) {
	ctx, span := s.tracer.Start(ctx, "token.Issue", trace.WithAttributes(
		attribute.String("artifact.id", artifactID),
		attribute.Int("token.ttl_seconds", ttlSeconds),
	))
	defer span.End()

	if artifactID == "" {
		return storage.DownloadToken{}, &artifact.ValidationError{Field: "artifact_id", Message: "must not be empty"}
	}
	if ttlSeconds < MinTTLSeconds || ttlSeconds > MaxTTLSeconds {
		return storage.DownloadToken{}, &artifact.ValidationError{
			Field:   "ttl_seconds",
			Message: fmt.Sprintf("must be between %d and %d", MinTTLSeconds, MaxTTLSeconds),
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	tok := storage.DownloadToken{
		Token:      s.newToken(),
		ArtifactID: artifactID,
		ExpiresAt:  now.Add(time.Duration(ttlSeconds) * time.Second),
		CreatedAt:  now,
	}

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := artifact.Load(ctx, tx, artifactID); err != nil {
			return err
		}
		return tx.InsertDownloadToken(ctx, tok)
	})
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return storage.DownloadToken{}, err
		}
		span.SetStatus(codes.Error, err.Error())
		return storage.DownloadToken{}, fmt.Errorf("issuing token: %w", err)
	}
	return tok, nil
}

// Redeem burns the token and, if it was valid, returns the artifact archive.
func (s *Service) Redeem(ctx context.Context, token string) (Download, error) {
	ctx, span := s.tracer.Start(ctx, "token.Redeem")
	defer span.End()

	dl, err := s.redeem(ctx, token)

	outcome := outcomeLabel(err)
	span.SetAttributes(attribute.String("token.outcome", outcome))
	if outcome == "error" {
		span.SetStatus(codes.Error, err.Error())
	}
	s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return dl, err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "redeemed"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrArtifactMissing):
		return "artifact_missing"
	default:
		return "error"
	}
}

func (s *Service) redeem(ctx context.Context, token string) (Download, error) {
	var (
		a       artifact.Artifact
		outcome error
	)

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		row, err := tx.GetDownloadToken(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			outcome = ErrInvalidToken
			return nil
		}
		if err != nil {
			return err
		}

		// Burn first. If another redeemer already removed the row, this
		// attempt lost the race and sees the token as unknown.
		if err := tx.DeleteDownloadToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				outcome = ErrInvalidToken
				return nil
			}
			return err
		}

		if !s.now().Before(row.ExpiresAt) {
			outcome = ErrTokenExpired
			return nil
		}

		a, err = artifact.Load(ctx, tx, row.ArtifactID)
		if errors.Is(err, artifact.ErrNotFound) {
			outcome = ErrArtifactMissing
			return nil
		}
		return err
	})
	if err != nil {
		return Download{}, fmt.Errorf("redeeming token: %w", err)
	}
	if outcome != nil {
		return Download{}, outcome
	}

	archive, err := bundle.Build(a)
	if err != nil {
		return Download{}, err
	}
	return Download{Artifact: a, Archive: archive, Filename: bundle.Filename(a)}, nil
}
