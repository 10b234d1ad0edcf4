package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fansoftheone/engine/internal/storage"
)

// Getter is satisfied by both *storage.Store and *storage.Tx.
type Getter interface {
	GetArtifact(ctx context.Context, id string) (storage.Artifact, error)
}

// Load fetches and decodes an artifact through g. It returns ErrNotFound
// when no row exists.
func Load(ctx context.Context, g Getter, id string) (Artifact, error) {
	rec, err := g.GetArtifact(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, err
	}
	return fromRecord(rec)
}

// Service creates and retrieves artifacts.
type Service struct {
	store *storage.Store
	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides artifact id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store *storage.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Convert validates the input, derives the structured output and persists a
// new artifact. Validation failures return *ValidationError and write nothing.
func (s *Service) Convert(ctx context.Context, rawInput, mode string) (Artifact, error) {
	if err := Validate(rawInput, mode); err != nil {
		return Artifact{}, err
	}

	a := Artifact{
		ID:               s.newID(),
		Brand:            Brand,
		Mode:             mode,
		RawInput:         rawInput,
		StructuredOutput: Structure(rawInput, mode),
		CreatedAt:        s.now().UTC().Truncate(time.Microsecond),
	}
	rec, err := toRecord(a)
	if err != nil {
		return Artifact{}, err
	}

	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertArtifact(ctx, rec)
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("saving artifact: %w", err)
	}
	return a, nil
}

// Get returns the artifact with id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Artifact, error) {
	return Load(ctx, s.store, id)
}
