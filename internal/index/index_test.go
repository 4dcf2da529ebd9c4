package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/state"
)

// countingStore wraps a store and counts Sync calls
type countingStore struct {
	state.Store
	mu    sync.Mutex
	syncs int
}

func (c *countingStore) Sync() error {
	c.mu.Lock()
	c.syncs++
	c.mu.Unlock()
	return c.Store.Sync()
}

func newTestIndex(t *testing.T, opts ...Option) (*Index, state.Store) {
	t.Helper()
	s, err := state.OpenSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, opts...), s
}

func TestIndex_InsertAndStats(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	inserts := []struct{ digest, path string }{
		{"d1", "/r/a.txt"},
		{"d1", "/r/x/a.txt"},
		{"d1", "/r/y/a.txt"},
		{"d2", "/r/b.txt"},
		{"d3", "/r/c.txt"},
		{"d3", "/r/z/c.txt"},
	}
	for _, in := range inserts {
		if err := ix.Insert(ctx, in.digest, in.path, 1); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	st := ix.Stats()
	if st.TotalFiles != 6 || st.UniqueFiles != 1 || st.DuplicateGroups != 2 || st.DuplicateFiles != 5 {
		t.Errorf("Stats() = %+v", st)
	}

	// unique + sum(group sizes) == total
	sum := st.UniqueFiles
	for _, n := range st.GroupSizes {
		sum += n
	}
	if sum != st.TotalFiles {
		t.Errorf("unique + group sizes = %d, want %d", sum, st.TotalFiles)
	}

	if got, want := ix.DuplicateDigests(), []string{"d1", "d3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DuplicateDigests() = %v, want %v", got, want)
	}
}

func TestIndex_PartitionLaw(t *testing.T) {
	tests := []struct {
		name   string
		groups []int
	}{
		{"empty", nil},
		{"all unique", []int{1, 1, 1, 1}},
		{"all duplicate", []int{2, 3, 4}},
		{"mixed", []int{1, 5, 1, 2, 1, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, _ := newTestIndex(t)
			ctx := context.Background()

			total := 0
			for g, size := range tt.groups {
				for i := 0; i < size; i++ {
					ix.Insert(ctx, fmt.Sprintf("digest-%d", g), fmt.Sprintf("/r/%d/%d", g, i), 0)
					total++
				}
			}

			st := ix.Stats()
			sum := st.UniqueFiles
			for _, n := range st.GroupSizes {
				sum += n
			}
			if sum != total || st.TotalFiles != total {
				t.Errorf("partition %d (total %d), want %d", sum, st.TotalFiles, total)
			}
		})
	}
}

func TestIndex_ClassifyIdempotent(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()

	ix.Insert(ctx, "d1", "/a", 0)
	ix.Insert(ctx, "d1", "/b", 0)
	ix.Insert(ctx, "d2", "/c", 0)

	if err := ix.Classify(ctx); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	first, _ := store.FindByDuplicate(ctx, true)

	if err := ix.Classify(ctx); err != nil {
		t.Fatalf("second Classify() error = %v", err)
	}
	second, _ := store.FindByDuplicate(ctx, true)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Classify() not idempotent: %v then %v", first, second)
	}
	if len(first) != 2 {
		t.Errorf("duplicates = %d, want 2", len(first))
	}

	for _, rec := range ix.Group("d1") {
		if rec.Duplicate != domain.DuplicateYes {
			t.Errorf("%s classified %s, want duplicate", rec.Path, rec.Duplicate)
		}
	}
	for _, rec := range ix.Group("d2") {
		if rec.Duplicate != domain.DuplicateNo {
			t.Errorf("%s classified %s, want unique", rec.Path, rec.Duplicate)
		}
	}
}

func TestIndex_ClassifyAfterMoreInserts(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()

	ix.Insert(ctx, "d1", "/a", 0)
	ix.Classify(ctx)

	ix.Insert(ctx, "d1", "/b", 0)
	ix.Classify(ctx)

	dups, _ := store.FindByDuplicate(ctx, true)
	if len(dups) != 2 {
		t.Errorf("duplicates after reclassify = %d, want 2", len(dups))
	}
}

func TestIndex_ConcurrentInsert(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				ix.Insert(ctx, fmt.Sprintf("d%d", i%5), fmt.Sprintf("/w%d/%d", w, i), 0)
			}
		}(w)
	}
	wg.Wait()

	if ix.Len() != 200 {
		t.Errorf("Len() = %d, want 200", ix.Len())
	}
	if got := len(ix.Paths()); got != 200 {
		t.Errorf("Paths() = %d entries, want 200", got)
	}
}

func TestIndex_FlushEvery(t *testing.T) {
	s, err := state.OpenJSONStore(filepath.Join(t.TempDir(), "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	store := &countingStore{Store: s}
	ix := New(store, WithFlushEvery(3))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		ix.Insert(ctx, "d", fmt.Sprintf("/%d", i), 0)
	}
	if store.syncs != 2 {
		t.Errorf("syncs after 7 inserts = %d, want 2", store.syncs)
	}

	ix.Sync()
	if store.syncs != 3 {
		t.Errorf("syncs after explicit Sync = %d, want 3", store.syncs)
	}
}

func TestIndex_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	ctx := context.Background()

	s, _ := state.OpenJSONStore(path)
	first := New(s)
	first.Insert(ctx, "d1", "/a/x.txt", 0)
	first.Insert(ctx, "d1", "/b/x.txt", 0)
	first.Sync()
	s.Close()

	reopened, err := state.OpenJSONStore(path)
	if err != nil {
		t.Fatalf("OpenJSONStore() error = %v", err)
	}
	ix := New(reopened)
	if err := ix.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if ix.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ix.Len())
	}
	if got := ix.DuplicateDigests(); len(got) != 1 || got[0] != "d1" {
		t.Errorf("DuplicateDigests() = %v, want [d1]", got)
	}
}

func TestIndex_InsertRejectsEmpty(t *testing.T) {
	ix, _ := newTestIndex(t)
	if err := ix.Insert(context.Background(), "", "/a", 0); err == nil {
		t.Error("Insert() with empty digest should fail")
	}
}

func TestIndex_LoadCorrupt(t *testing.T) {
	ix, store := newTestIndex(t)
	ctx := context.Background()
	store.Insert(ctx, domain.FileRecord{Path: "", Digest: "d"})

	if err := ix.Load(ctx); !errors.Is(err, domain.ErrStateCorrupt) {
		t.Errorf("Load() error = %v, want ErrStateCorrupt", err)
	}
}
