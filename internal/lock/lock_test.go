package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/deduplify/internal/testutil"
)

func lockIn(t *testing.T, dir string) *IndexLock {
	t.Helper()
	l, err := ForIndex(filepath.Join(dir, "file_hashes.db"))
	if err != nil {
		t.Fatalf("ForIndex() error = %v", err)
	}
	return l
}

func assertLockFile(t *testing.T, l *IndexLock, want bool) {
	t.Helper()
	_, err := os.Stat(l.Path())
	if got := err == nil; got != want {
		t.Errorf("lock file exists = %v, want %v", got, want)
	}
}

func TestForIndex(t *testing.T) {
	dir := t.TempDir()

	index := filepath.Join(dir, "nested", "file_hashes.json")
	l, err := ForIndex(index)
	if err != nil {
		t.Fatalf("ForIndex() error = %v", err)
	}
	if want := index + Suffix; l.Path() != want {
		t.Errorf("Path() = %s, want %s", l.Path(), want)
	}
	if _, err := os.Stat(filepath.Dir(index)); err != nil {
		t.Error("index directory was not created")
	}

	rel, err := ForIndex("file_hashes.db")
	if err != nil {
		t.Fatalf("ForIndex(relative) error = %v", err)
	}
	if !filepath.IsAbs(rel.Path()) {
		t.Errorf("Path() = %s, want absolute", rel.Path())
	}

	if _, err := ForIndex(""); err == nil {
		t.Error("ForIndex(\"\") should fail")
	}
}

func TestLifecycle(t *testing.T) {
	l := lockIn(t, t.TempDir())

	if l.IsLocked() {
		t.Fatal("fresh lock reports locked")
	}
	if _, err := l.Holder(); err == nil {
		t.Error("Holder() on a free lock should fail")
	}

	before := time.Now()
	if err := l.Acquire("hash", "run-123"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	assertLockFile(t, l, true)
	if !l.IsLocked() {
		t.Error("IsLocked() = false after Acquire")
	}

	h, err := l.Holder()
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if h.PID != os.Getpid() || h.Hostname != hostname() {
		t.Errorf("holder = %d@%s, want this process", h.PID, h.Hostname)
	}
	if h.Command != "hash" || h.RunID != "run-123" {
		t.Errorf("holder labels = %s/%s", h.Command, h.RunID)
	}
	if h.StartTime.Before(before.Add(-time.Second)) {
		t.Errorf("start time %v predates Acquire", h.StartTime)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	assertLockFile(t, l, false)
	if l.IsLocked() {
		t.Error("IsLocked() = true after Release")
	}

	// Nothing held, nothing to do
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestAcquire_Relabel(t *testing.T) {
	l := lockIn(t, t.TempDir())

	if err := l.Acquire("hash", "run-1"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Acquire("compare", "run-2"); err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}

	h, err := l.Holder()
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if h.Command != "compare" || h.RunID != "run-2" {
		t.Errorf("holder = %s/%s, want compare/run-2", h.Command, h.RunID)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release() after relabel error = %v", err)
	}
	assertLockFile(t, l, false)
}

func TestAcquire_HeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	first, second := lockIn(t, dir), lockIn(t, dir)

	if err := first.Acquire("hash", "a"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer first.Release()

	err := second.Acquire("compare", "b")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}
	if !IsLockError(err) || !errors.Is(err, ErrLocked) {
		t.Fatalf("error = %v, want a LockError matching ErrLocked", err)
	}

	var le *LockError
	errors.As(err, &le)
	if le.Holder == nil || le.Holder.Command != "hash" || le.Holder.RunID != "a" {
		t.Errorf("reported holder = %+v", le.Holder)
	}
	if !strings.Contains(err.Error(), "command: hash") {
		t.Errorf("Error() = %q", err.Error())
	}

	// The loser must not disturb the winner
	if err := second.Release(); err != nil {
		t.Errorf("Release() by loser error = %v", err)
	}
	assertLockFile(t, first, true)
}

func TestAcquire_Stale(t *testing.T) {
	tests := []struct {
		name     string
		holder   Holder
		timeout  time.Duration
		takeover bool
	}{
		{
			name:     "dead local process",
			holder:   Holder{PID: 999999, Hostname: hostname(), StartTime: time.Now().Add(-time.Hour)},
			timeout:  DefaultStaleTimeout,
			takeover: true,
		},
		{
			name:     "old lock from another host",
			holder:   Holder{PID: 12345, Hostname: "host-" + testutil.RandomString(8), StartTime: time.Now().Add(-time.Hour)},
			timeout:  time.Minute,
			takeover: true,
		},
		{
			name:     "recent lock from another host",
			holder:   Holder{PID: 12345, Hostname: "host-" + testutil.RandomString(8), StartTime: time.Now()},
			timeout:  time.Hour,
			takeover: false,
		},
		{
			name:     "long-running local process",
			holder:   Holder{PID: os.Getpid(), Hostname: hostname(), StartTime: time.Now().Add(-24 * time.Hour)},
			timeout:  time.Millisecond,
			takeover: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := lockIn(t, t.TempDir())
			l.staleTimeout = tt.timeout
			tt.holder.Command = "hash"
			if err := l.write(&tt.holder); err != nil {
				t.Fatalf("write() error = %v", err)
			}

			if got := l.IsLocked(); got == tt.takeover {
				t.Errorf("IsLocked() = %v", got)
			}

			err := l.Acquire("compare", "new")
			if tt.takeover {
				if err != nil {
					t.Fatalf("Acquire() over stale lock error = %v", err)
				}
				defer l.Release()
				h, _ := l.Holder()
				if h == nil || h.PID != os.Getpid() || h.RunID != "new" {
					t.Errorf("holder after takeover = %+v", h)
				}
				return
			}
			if !IsLockError(err) {
				t.Errorf("Acquire() error = %v, want LockError", err)
			}
		})
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	dir := t.TempDir()

	const contenders = 10
	var (
		tried, done sync.WaitGroup
		release     = make(chan struct{})
		results     = make([]error, contenders)
	)

	tried.Add(contenders)
	done.Add(contenders)
	for i := range contenders {
		go func() {
			defer done.Done()
			l, err := ForIndex(filepath.Join(dir, "file_hashes.db"))
			if err == nil {
				err = l.Acquire("hash", "concurrent")
			}
			results[i] = err
			tried.Done()
			if err == nil {
				// Hold until every contender has tried
				<-release
				l.Release()
			}
		}()
	}
	tried.Wait()
	close(release)
	done.Wait()

	winners, losers := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case IsLockError(err):
			losers++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 || losers != contenders-1 {
		t.Errorf("winners = %d, losers = %d", winners, losers)
	}
}

func TestRelease_AfterTakeover(t *testing.T) {
	l := lockIn(t, t.TempDir())
	if err := l.Acquire("hash", "a"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Another run rewrote the file after treating ours as stale
	intruder := currentHolder("clean", "b")
	if err := l.write(intruder); err != nil {
		t.Fatalf("write() error = %v", err)
	}

	err := l.Release()
	if err == nil || !strings.Contains(err.Error(), "taken over") {
		t.Errorf("Release() error = %v, want takeover report", err)
	}
	assertLockFile(t, l, true)
}

func TestForceRelease(t *testing.T) {
	dir := t.TempDir()
	owner, other := lockIn(t, dir), lockIn(t, dir)

	removed, err := other.ForceRelease()
	if err != nil || removed {
		t.Fatalf("ForceRelease() on free lock = %v, %v", removed, err)
	}

	if err := owner.Acquire("hash", "a"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	removed, err = other.ForceRelease()
	if err != nil || !removed {
		t.Fatalf("ForceRelease() = %v, %v, want removed", removed, err)
	}
	assertLockFile(t, owner, false)

	// The lock is free for the next run
	if err := other.Acquire("compare", "b"); err != nil {
		t.Errorf("Acquire() after ForceRelease error = %v", err)
	}
	other.Release()
}

func TestLockError_NoHolder(t *testing.T) {
	err := &LockError{Reason: "busy"}
	if err.Error() != "cannot acquire lock: busy" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrLocked) {
		t.Error("LockError should match ErrLocked")
	}
	if IsLockError(errors.New("busy")) {
		t.Error("plain error reported as LockError")
	}
}

func TestProcessExists(t *testing.T) {
	if !processExists(os.Getpid()) {
		t.Error("current process should exist")
	}
	if processExists(0) || processExists(-1) {
		t.Error("non-positive pids never exist")
	}
}
