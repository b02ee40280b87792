// Package ledger keeps a queryable record of every account this tool has
// provisioned. It is an audit surface, not a counter: sequence numbering
// stays directory-scan based, and a ledger write failure never aborts a
// provisioning batch. Backed by an embedded SQLite database with schema
// migrations managed by goose.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/samaker/samaker/internal/provision"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one recorded account, as stored.
type Entry struct {
	Account   provision.ProvisionedAccount
	CreatedAt time.Time
}

// Store is the SQLite-backed ledger. It implements provision.Recorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	insertStmt *sql.Stmt
	listStmt   *sql.Stmt
}

// Open opens (or creates) the ledger database at dbPath, applying pending
// migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Debug("opening ledger database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: setting WAL mode: %w", err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: preparing statements: %w", err)
	}

	return s, nil
}

// runMigrations applies all pending schema migrations.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("ledger: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("ledger: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	s.insertStmt, err = s.db.PrepareContext(ctx, `
		INSERT INTO accounts (prefix, seq, name, email, unique_id, key_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (prefix, seq) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			unique_id = excluded.unique_id,
			key_path = excluded.key_path,
			created_at = excluded.created_at`)
	if err != nil {
		return err
	}

	s.listStmt, err = s.db.PrepareContext(ctx, `
		SELECT prefix, seq, name, email, unique_id, key_path, created_at
		FROM accounts
		WHERE prefix = ?
		ORDER BY seq ASC`)

	return err
}

// RecordAccount stores one provisioned account. Idempotent per
// (prefix, sequence): re-recording overwrites the previous row, so a wiped
// key folder reprovisioned from zero does not wedge the ledger.
func (s *Store) RecordAccount(ctx context.Context, account provision.ProvisionedAccount) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	_, err := s.insertStmt.ExecContext(ctx,
		account.Prefix, account.Sequence, account.Name,
		account.Email, account.UniqueID, account.KeyPath, createdAt)
	if err != nil {
		return fmt.Errorf("ledger: recording account %s: %w", account.Name, err)
	}

	return nil
}

// AccountsByPrefix returns all recorded accounts for a prefix in ascending
// sequence order.
func (s *Store) AccountsByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.listStmt.QueryContext(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing accounts for %q: %w", prefix, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e         Entry
			createdAt string
		)

		if err := rows.Scan(
			&e.Account.Prefix, &e.Account.Sequence, &e.Account.Name,
			&e.Account.Email, &e.Account.UniqueID, &e.Account.KeyPath,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scanning account row: %w", err)
		}

		ts, parseErr := time.Parse(time.RFC3339, createdAt)
		if parseErr == nil {
			e.CreatedAt = ts
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating account rows: %w", err)
	}

	return entries, nil
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	if s.insertStmt != nil {
		_ = s.insertStmt.Close()
	}

	if s.listStmt != nil {
		_ = s.listStmt.Close()
	}

	return s.db.Close()
}
