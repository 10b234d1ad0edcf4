package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a transaction scoped to a single WithTx call. It must not be used
// after the callback returns.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; every other exit path, panics included, rolls it back and
// releases the connection.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			sqlTx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

func (t *Tx) InsertArtifact(ctx context.Context, a Artifact) error {
	return insertArtifact(ctx, t.tx, a)
}

func (t *Tx) GetArtifact(ctx context.Context, id string) (Artifact, error) {
	return getArtifact(ctx, t.tx, id)
}

func (t *Tx) InsertDownloadToken(ctx context.Context, dt DownloadToken) error {
	return insertDownloadToken(ctx, t.tx, dt)
}

func (t *Tx) GetDownloadToken(ctx context.Context, token string) (DownloadToken, error) {
	return getDownloadToken(ctx, t.tx, token)
}

func (t *Tx) DeleteDownloadToken(ctx context.Context, token string) error {
	return deleteDownloadToken(ctx, t.tx, token)
}
