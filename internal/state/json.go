package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Ning0612/deduplify/internal/domain"
)

// JSONStore keeps the index as a flat {digest: [paths...]} JSON document.
//
// Inserts are buffered in memory; Sync rewrites the file atomically
// (temp file, fsync, rename, dir fsync). Classification is not stored: it
// is derived from group sizes when the file is loaded.
type JSONStore struct {
	mu      sync.RWMutex
	path    string
	records []domain.FileRecord
	byHash  map[string][]int
	dirty   bool
}

// OpenJSONStore loads the document at path, or starts an empty one if the
// file does not exist yet
func OpenJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: index path cannot be empty", domain.ErrConfigInvalid)
	}

	s := &JSONStore{
		path:   path,
		byHash: make(map[string][]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var doc map[string][]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, path, err)
	}

	digests := make([]string, 0, len(doc))
	for digest := range doc {
		digests = append(digests, digest)
	}
	sort.Strings(digests)

	for _, digest := range digests {
		paths := doc[digest]
		if digest == "" || len(paths) == 0 {
			return nil, fmt.Errorf("%w: %s: empty digest entry", domain.ErrStateCorrupt, path)
		}
		dup := domain.DuplicateStateFromBool(len(paths) > 1)
		for _, p := range paths {
			s.appendLocked(domain.FileRecord{Path: p, Digest: digest, Duplicate: dup})
		}
	}

	return s, nil
}

// Path returns the document path
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) appendLocked(rec domain.FileRecord) {
	s.byHash[rec.Digest] = append(s.byHash[rec.Digest], len(s.records))
	s.records = append(s.records, rec)
}

// Insert implements Store
func (s *JSONStore) Insert(ctx context.Context, rec domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(rec)
	s.dirty = true
	return nil
}

// All implements Store
func (s *JSONStore) All(ctx context.Context) ([]domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FileRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// FindByDigest implements Store
func (s *JSONStore) FindByDigest(ctx context.Context, digest string) ([]domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FileRecord
	for _, i := range s.byHash[digest] {
		out = append(out, s.records[i])
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	return out, nil
}

// FindByDuplicate implements Store
func (s *JSONStore) FindByDuplicate(ctx context.Context, dup bool) ([]domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := domain.DuplicateStateFromBool(dup)
	var out []domain.FileRecord
	for _, rec := range s.records {
		if rec.Duplicate == want {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Digest != out[b].Digest {
			return out[a].Digest < out[b].Digest
		}
		return out[a].Path < out[b].Path
	})
	return out, nil
}

// UpdateDuplicate implements Store
func (s *JSONStore) UpdateDuplicate(ctx context.Context, digest string, state domain.DuplicateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, i := range s.byHash[digest] {
		s.records[i].Duplicate = state
	}
	return nil
}

// Sync implements Store
func (s *JSONStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty && fileExists(s.path) {
		return nil
	}

	doc := make(map[string][]string, len(s.byHash))
	for digest, idx := range s.byHash {
		paths := make([]string, 0, len(idx))
		for _, i := range idx {
			paths = append(paths, s.records[i].Path)
		}
		doc[digest] = paths
	}

	// encoding/json sorts map keys, which keeps the file diffable
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := writeFileAtomicDurable(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write index %s: %w", s.path, err)
	}

	s.dirty = false
	return nil
}

// Close flushes pending inserts
func (s *JSONStore) Close() error {
	s.mu.RLock()
	dirty := s.dirty
	s.mu.RUnlock()

	if dirty {
		return s.Sync()
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(TempPrefix(path))+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true

	// Directory fsync is best effort; not every platform supports it
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

var _ Store = (*JSONStore)(nil)
