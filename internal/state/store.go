package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/deduplify/internal/domain"
)

// Store is the persisted side of the duplicate index.
//
// Implementations must be safe for use by a single writer at a time; the
// index serializes concurrent inserts before they reach the store.
type Store interface {
	// Insert appends one record
	Insert(ctx context.Context, rec domain.FileRecord) error

	// All returns every record
	All(ctx context.Context) ([]domain.FileRecord, error)

	// FindByDigest returns the records sharing digest
	FindByDigest(ctx context.Context, digest string) ([]domain.FileRecord, error)

	// FindByDuplicate returns the records whose classification matches dup
	FindByDuplicate(ctx context.Context, dup bool) ([]domain.FileRecord, error)

	// UpdateDuplicate sets the classification of every record with digest
	UpdateDuplicate(ctx context.Context, digest string, state domain.DuplicateState) error

	// Sync makes every accepted insert and update durable
	Sync() error

	// Close releases the store
	Close() error
}

// Backend identifies a Store implementation
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendJSON   Backend = "json"
)

// BackendFor picks the backend from the index file extension
func BackendFor(path string) Backend {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return BackendJSON
	}
	return BackendSQLite
}

// Open opens the index at path with the backend matching its extension
func Open(path string) (Store, error) {
	switch BackendFor(path) {
	case BackendJSON:
		return OpenJSONStore(path)
	default:
		return OpenSQLiteStore(path)
	}
}

// Exists reports whether an index file is present at path
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Files returns the index file at path and the sidecar files SQLite may
// create next to it
func Files(path string) []string {
	return []string{path, path + "-wal", path + "-shm", path + "-journal"}
}

// TempPrefix is the prefix of the temporary files written while the JSON
// index at path is replaced
func TempPrefix(path string) string {
	return path + ".tmp."
}

// Remove deletes an index file and its sidecar files
func Remove(path string) error {
	for _, p := range Files(path) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove index %s: %w", p, err)
		}
	}
	return nil
}
