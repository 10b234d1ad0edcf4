package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding artifacts and download tokens.
type Store struct {
	db *sql.DB
}

// Options controls how Open prepares the database.
type Options struct {
	// AutoMigrate applies pending migrations while opening. Intended for
	// local development; production runs Migrate from `engine migrate`.
	AutoMigrate bool
}

// Open opens (or creates) the SQLite database named by databaseURL.
// Accepted forms are "sqlite:///relative/or/absolute/path.db", "file:..."
// DSNs, bare file paths and ":memory:" (used by tests).
func Open(databaseURL string, opts Options) (*Store, error) {
	dsn, err := sqliteDSN(databaseURL)
	if err != nil {
		return nil, err
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection serializes transactions, which is what makes
	// token redemption single-use under concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if opts.AutoMigrate {
		if err := s.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

func sqliteDSN(databaseURL string) (string, error) {
	switch {
	case databaseURL == "" || databaseURL == ":memory:" || databaseURL == "sqlite://":
		return ":memory:", nil
	case strings.HasPrefix(databaseURL, "sqlite:///"):
		return strings.TrimPrefix(databaseURL, "sqlite:///"), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return databaseURL, nil
	case strings.Contains(databaseURL, "://"):
		return "", fmt.Errorf("unsupported database url %q: only sqlite is supported", databaseURL)
	default:
		return databaseURL, nil
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies embedded SQL migrations that haven't been run yet.
// Migrations are forward-only.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		err = s.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("applying migration %d: %w", version, err)
			}
			if _, err := tx.tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
				return fmt.Errorf("recording migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// querier is the subset of *sql.DB and *sql.Tx used by the record operations.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- Artifacts ---

func insertArtifact(ctx context.Context, q querier, a Artifact) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO artifacts (id, brand, mode, raw_input, structured_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Brand, a.Mode, a.RawInput, a.StructuredJSON, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting artifact %s: %w", a.ID, err)
	}
	return nil
}

func getArtifact(ctx context.Context, q querier, id string) (Artifact, error) {
	var a Artifact
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, brand, mode, raw_input, structured_json, created_at
		FROM artifacts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Brand, &a.Mode, &a.RawInput, &a.StructuredJSON, &createdAt)
	if err == sql.ErrNoRows {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("getting artifact %s: %w", id, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Artifact{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return a, nil
}

// --- Download tokens ---

func insertDownloadToken(ctx context.Context, q querier, t DownloadToken) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO download_tokens (token, artifact_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		t.Token, t.ArtifactID, formatTime(t.ExpiresAt), formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting download token: %w", err)
	}
	return nil
}

func getDownloadToken(ctx context.Context, q querier, token string) (DownloadToken, error) {
	var t DownloadToken
	var expiresAt, createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT token, artifact_id, expires_at, created_at
		FROM download_tokens WHERE token = ?`, token,
	).Scan(&t.Token, &t.ArtifactID, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return DownloadToken{}, ErrNotFound
	}
	if err != nil {
		return DownloadToken{}, fmt.Errorf("getting download token: %w", err)
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return DownloadToken{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return DownloadToken{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

func deleteDownloadToken(ctx context.Context, q querier, token string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM download_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deleting download token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertArtifact stores a new artifact.
func (s *Store) InsertArtifact(ctx context.Context, a Artifact) error {
	return insertArtifact(ctx, s.db, a)
}

// GetArtifact returns the artifact with the given id, or ErrNotFound.
func (s *Store) GetArtifact(ctx context.Context, id string) (Artifact, error) {
	return getArtifact(ctx, s.db, id)
}

// InsertDownloadToken stores a new download token.
func (s *Store) InsertDownloadToken(ctx context.Context, t DownloadToken) error {
	return insertDownloadToken(ctx, s.db, t)
}

// GetDownloadToken returns the token row, or ErrNotFound.
func (s *Store) GetDownloadToken(ctx context.Context, token string) (DownloadToken, error) {
	return getDownloadToken(ctx, s.db, token)
}

// DeleteDownloadToken removes a token row. It returns ErrNotFound if no row
// was deleted.
func (s *Store) DeleteDownloadToken(ctx context.Context, token string) error {
	return deleteDownloadToken(ctx, s.db, token)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
