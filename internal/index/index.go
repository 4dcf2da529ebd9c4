// Package index maps content digests to the files that produce them and
// classifies each file as duplicate or unique.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
	"github.com/Ning0612/deduplify/internal/state"
)

// DefaultFlushEvery is the number of inserts between store syncs
const DefaultFlushEvery = 1000

// Stats summarizes the partition of the index
type Stats struct {
	TotalFiles      int
	UniqueFiles     int
	DuplicateGroups int
	DuplicateFiles  int
	// GroupSizes holds the size of every duplicate group
	GroupSizes []int
}

// Index is the in-memory view of a state.Store. All methods are safe for
// concurrent use; Insert is the only method called from worker goroutines.
type Index struct {
	mu         sync.Mutex
	store      state.Store
	log        logger.Logger
	groups     map[string][]domain.FileRecord
	count      int
	pending    int
	flushEvery int
}

// Option configures an Index
type Option func(*Index)

// WithFlushEvery sets how many inserts may be buffered before Sync is called
// on the store. n <= 0 syncs after every insert.
func WithFlushEvery(n int) Option {
	return func(ix *Index) {
		ix.flushEvery = n
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(ix *Index) {
		ix.log = l
	}
}

// New creates an empty index backed by store
func New(store state.Store, opts ...Option) *Index {
	ix := &Index{
		store:      store,
		log:        logger.Nop(),
		groups:     make(map[string][]domain.FileRecord),
		flushEvery: DefaultFlushEvery,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.log = logger.OrNop(ix.log).With("component", "index")
	return ix
}

// Load replaces the in-memory view with every record in the store
func (ix *Index) Load(ctx context.Context) error {
	records, err := ix.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.groups = make(map[string][]domain.FileRecord)
	ix.count = 0
	for _, rec := range records {
		if rec.Digest == "" || rec.Path == "" {
			return fmt.Errorf("%w: record with empty digest or path", domain.ErrStateCorrupt)
		}
		ix.groups[rec.Digest] = append(ix.groups[rec.Digest], rec)
		ix.count++
	}

	ix.log.Debug("index loaded", "files", ix.count, "digests", len(ix.groups))
	return nil
}

// Insert appends a record for path. The record is handed to the store
// before Insert returns.
func (ix *Index) Insert(ctx context.Context, digest, path string, size int64) error {
	if digest == "" || path == "" {
		return fmt.Errorf("insert requires digest and path")
	}

	rec := domain.FileRecord{Path: path, Digest: digest, Size: size}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.store.Insert(ctx, rec); err != nil {
		return err
	}
	ix.groups[digest] = append(ix.groups[digest], rec)
	ix.count++
	ix.pending++

	if ix.pending >= ix.flushEvery {
		if err := ix.store.Sync(); err != nil {
			return err
		}
		ix.pending = 0
	}
	return nil
}

// Sync flushes buffered inserts to durable storage
func (ix *Index) Sync() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.store.Sync(); err != nil {
		return err
	}
	ix.pending = 0
	return nil
}

// Classify marks every record as duplicate (digest shared by >= 2 records)
// or unique, and persists the result. Running it twice without inserts in
// between yields the same partition.
func (ix *Index) Classify(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, digest := range ix.sortedDigestsLocked() {
		records := ix.groups[digest]
		dup := domain.DuplicateStateFromBool(len(records) > 1)

		changed := false
		for i := range records {
			if records[i].Duplicate != dup {
				records[i].Duplicate = dup
				changed = true
			}
		}
		if !changed {
			continue
		}

		if err := ix.store.UpdateDuplicate(ctx, digest, dup); err != nil {
			return fmt.Errorf("failed to classify %s: %w", digest, err)
		}
	}

	if err := ix.store.Sync(); err != nil {
		return err
	}
	ix.pending = 0
	return nil
}

// DuplicateDigests returns the digests shared by at least two records,
// sorted
func (ix *Index) DuplicateDigests() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var out []string
	for _, digest := range ix.sortedDigestsLocked() {
		if len(ix.groups[digest]) > 1 {
			out = append(out, digest)
		}
	}
	return out
}

// Group returns the records for digest sorted by path
func (ix *Index) Group(digest string) []domain.FileRecord {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	records := ix.groups[digest]
	out := make([]domain.FileRecord, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Paths returns every recorded path
func (ix *Index) Paths() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make([]string, 0, ix.count)
	for _, records := range ix.groups {
		for _, rec := range records {
			out = append(out, rec.Path)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of records
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.count
}

// Stats returns the unique/duplicate partition of the index
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	st := Stats{TotalFiles: ix.count}
	for _, digest := range ix.sortedDigestsLocked() {
		n := len(ix.groups[digest])
		if n == 1 {
			st.UniqueFiles++
			continue
		}
		st.DuplicateGroups++
		st.DuplicateFiles += n
		st.GroupSizes = append(st.GroupSizes, n)
	}
	return st
}

func (ix *Index) sortedDigestsLocked() []string {
	digests := make([]string, 0, len(ix.groups))
	for digest := range ix.groups {
		digests = append(digests, digest)
	}
	sort.Strings(digests)
	return digests
}
