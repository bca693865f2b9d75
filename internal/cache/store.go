// Package cache persists the client's last-known server state — the file
// listing and per-file request status — in an embedded SQLite database.
// The cache lets `ls --cached` answer offline and gives the watch loop a
// baseline to diff fresh listings against. It is never authoritative; the
// server is.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/SunnyJalendra/minidrive-go/internal/api"
)

// ErrNoStatus is returned by RequestStatus when no status has been cached
// for the file.
var ErrNoStatus = errors.New("cache: no cached request status")

// Store is the SQLite-backed cache. Safe for concurrent use via the
// underlying *sql.DB.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries.
	insertFile   *sql.Stmt
	listFiles    *sql.Stmt
	clearFiles   *sql.Stmt
	upsertStatus *sql.Stmt
	getStatus    *sql.Stmt
	deleteStatus *sql.Stmt
}

// NewStore opens the cache database at dbPath, applying migrations and
// preparing statements. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening cache database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: prepare statements: %w", err)
	}

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("cache: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	if s.insertFile, err = s.db.PrepareContext(ctx,
		`INSERT INTO files (id, owner_id, owner_email, original_name, size_bytes, created_at, shared, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}

	if s.listFiles, err = s.db.PrepareContext(ctx,
		`SELECT id, owner_id, owner_email, original_name, size_bytes, created_at, shared
		 FROM files ORDER BY shared, position`); err != nil {
		return err
	}

	if s.clearFiles, err = s.db.PrepareContext(ctx, `DELETE FROM files`); err != nil {
		return err
	}

	if s.upsertStatus, err = s.db.PrepareContext(ctx,
		`INSERT INTO request_status (file_id, status, permission, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(file_id) DO UPDATE SET status = excluded.status,
		   permission = excluded.permission, fetched_at = excluded.fetched_at`); err != nil {
		return err
	}

	if s.getStatus, err = s.db.PrepareContext(ctx,
		`SELECT status, permission FROM request_status WHERE file_id = ?`); err != nil {
		return err
	}

	if s.deleteStatus, err = s.db.PrepareContext(ctx,
		`DELETE FROM request_status WHERE file_id = ?`); err != nil {
		return err
	}

	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveListing replaces the cached file listing with the given one,
// preserving server order via the position column.
func (s *Store) SaveListing(ctx context.Context, listing *api.FileListing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin listing save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.StmtContext(ctx, s.clearFiles).ExecContext(ctx); err != nil {
		return fmt.Errorf("cache: clearing files: %w", err)
	}

	insert := tx.StmtContext(ctx, s.insertFile)

	for i := range listing.Owned {
		if err := insertRecord(ctx, insert, &listing.Owned[i], false, i); err != nil {
			return err
		}
	}

	for i := range listing.Shared {
		if err := insertRecord(ctx, insert, &listing.Shared[i], true, i); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: committing listing save: %w", err)
	}

	return nil
}

func insertRecord(ctx context.Context, stmt *sql.Stmt, rec *api.FileRecord, shared bool, position int) error {
	createdAt := ""
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	}

	sharedInt := 0
	if shared {
		sharedInt = 1
	}

	if _, err := stmt.ExecContext(ctx,
		rec.ID, rec.OwnerID, rec.OwnerEmail, rec.OriginalName,
		rec.SizeBytes, createdAt, sharedInt, position,
	); err != nil {
		return fmt.Errorf("cache: inserting file %s: %w", rec.ID, err)
	}

	return nil
}

// Listing returns the cached file listing in the order it was saved.
// An empty cache returns an empty listing, not an error.
func (s *Store) Listing(ctx context.Context) (*api.FileListing, error) {
	rows, err := s.listFiles.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: querying files: %w", err)
	}
	defer rows.Close()

	listing := &api.FileListing{}

	for rows.Next() {
		var (
			rec       api.FileRecord
			createdAt string
			shared    int
		)

		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.OwnerEmail,
			&rec.OriginalName, &rec.SizeBytes, &createdAt, &shared); err != nil {
			return nil, fmt.Errorf("cache: scanning file row: %w", err)
		}

		if createdAt != "" {
			if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
				rec.CreatedAt = t
			}
		}

		if shared == 1 {
			listing.Shared = append(listing.Shared, rec)
		} else {
			listing.Owned = append(listing.Owned, rec)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterating file rows: %w", err)
	}

	return listing, nil
}

// SaveRequestStatus caches the caller's request status for a file.
func (s *Store) SaveRequestStatus(ctx context.Context, fileID string, status api.RequestStatus) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := s.upsertStatus.ExecContext(ctx, fileID, string(status.State), string(status.Permission), now); err != nil {
		return fmt.Errorf("cache: saving request status for %s: %w", fileID, err)
	}

	return nil
}

// RequestStatus returns the cached request status for a file, or
// ErrNoStatus when none has been cached.
func (s *Store) RequestStatus(ctx context.Context, fileID string) (*api.RequestStatus, error) {
	var state, permission string

	err := s.getStatus.QueryRowContext(ctx, fileID).Scan(&state, &permission)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoStatus
	}

	if err != nil {
		return nil, fmt.Errorf("cache: querying request status for %s: %w", fileID, err)
	}

	return &api.RequestStatus{
		State:      api.RequestState(state),
		Permission: api.Permission(permission),
	}, nil
}

// DeleteRequestStatus drops the cached status for a file.
func (s *Store) DeleteRequestStatus(ctx context.Context, fileID string) error {
	if _, err := s.deleteStatus.ExecContext(ctx, fileID); err != nil {
		return fmt.Errorf("cache: deleting request status for %s: %w", fileID, err)
	}

	return nil
}
