package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/deduplify/internal/domain"
)

// SQLiteStore keeps file records and run history in a SQLite database.
// Every statement commits on its own, so a record is durable as soon as
// Insert returns.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (or creates) the database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: index path cannot be empty", domain.ErrConfigInvalid)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStateCorrupt, err)
	}

	store := &SQLiteStore{db: db, path: path}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", domain.ErrStateCorrupt, err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		digest TEXT NOT NULL,
		size INTEGER DEFAULT 0,
		duplicate INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_files_digest ON files(digest);
	CREATE INDEX IF NOT EXISTS idx_files_duplicate ON files(duplicate);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		command TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		files_hashed INTEGER DEFAULT 0,
		files_deleted INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start ON runs(start_time DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Insert implements Store
func (s *SQLiteStore) Insert(ctx context.Context, rec domain.FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, digest, size, duplicate) VALUES (?, ?, ?, ?)`,
		rec.Path, rec.Digest, rec.Size, encodeDuplicate(rec.Duplicate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", rec.Path, err)
	}
	return nil
}

// All implements Store
func (s *SQLiteStore) All(ctx context.Context) ([]domain.FileRecord, error) {
	return s.query(ctx, `SELECT path, digest, size, duplicate FROM files ORDER BY id`)
}

// FindByDigest implements Store
func (s *SQLiteStore) FindByDigest(ctx context.Context, digest string) ([]domain.FileRecord, error) {
	return s.query(ctx, `SELECT path, digest, size, duplicate FROM files WHERE digest = ? ORDER BY path`, digest)
}

// FindByDuplicate implements Store
func (s *SQLiteStore) FindByDuplicate(ctx context.Context, dup bool) ([]domain.FileRecord, error) {
	return s.query(ctx,
		`SELECT path, digest, size, duplicate FROM files WHERE duplicate = ? ORDER BY digest, path`,
		encodeDuplicate(domain.DuplicateStateFromBool(dup)),
	)
}

// UpdateDuplicate implements Store
func (s *SQLiteStore) UpdateDuplicate(ctx context.Context, digest string, state domain.DuplicateState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET duplicate = ? WHERE digest = ?`,
		encodeDuplicate(state), digest,
	)
	if err != nil {
		return fmt.Errorf("failed to update digest %s: %w", digest, err)
	}
	return nil
}

// Sync implements Store. Statements are already committed; this
// checkpoints the WAL into the main database file.
func (s *SQLiteStore) Sync() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(FULL)"); err != nil {
		return fmt.Errorf("failed to checkpoint index: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query files: %v", domain.ErrStateCorrupt, err)
	}
	defer rows.Close()

	var records []domain.FileRecord
	for rows.Next() {
		var rec domain.FileRecord
		var dup sql.NullBool
		if err := rows.Scan(&rec.Path, &rec.Digest, &rec.Size, &dup); err != nil {
			return nil, fmt.Errorf("%w: failed to scan record: %v", domain.ErrStateCorrupt, err)
		}
		rec.Duplicate = decodeDuplicate(dup)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// encodeDuplicate maps the tri-state onto NULL / 1 / 0
func encodeDuplicate(s domain.DuplicateState) sql.NullBool {
	switch s {
	case domain.DuplicateYes:
		return sql.NullBool{Bool: true, Valid: true}
	case domain.DuplicateNo:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func decodeDuplicate(v sql.NullBool) domain.DuplicateState {
	if !v.Valid {
		return domain.DuplicateUnknown
	}
	return domain.DuplicateStateFromBool(v.Bool)
}

var _ Store = (*SQLiteStore)(nil)
