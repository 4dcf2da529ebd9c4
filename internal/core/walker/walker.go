// Package walker enumerates the regular files under a root directory and
// hashes them on one bounded worker pool.
package walker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/Ning0612/deduplify/internal/core/checksum"
	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
	"github.com/Ning0612/deduplify/internal/progress"
)

// HashResult is delivered once per dispatched file
type HashResult struct {
	Path   string
	Digest string
	Size   int64
	Err    error
}

// Stats counts what happened during a walk
type Stats struct {
	Files     int // regular files seen
	Hashed    int
	Skipped   int // in the resume skip-set
	Excluded  int // the index and its companion files
	Filtered  int // rejected by the extension filter
	Irregular int // symlinks, devices, sockets
	Errors    int // hash failures and unreadable directories
	Bytes     int64
}

// Options configures one walk
type Options struct {
	// Concurrency bounds the worker pool; see ValidateConcurrency
	Concurrency int

	// Extensions filters files before dispatch
	Extensions ExtensionFilter

	// Skip lists files processed by an earlier run (may be nil)
	Skip *SkipSet

	// Exclude lists files that are never hashed (may be nil)
	Exclude *ExcludeSet
}

// Walker dispatches file hashing across a worker pool
type Walker struct {
	fs       afero.Fs
	hasher   *checksum.Hasher
	log      logger.Logger
	reporter progress.Reporter
}

// New creates a walker over fs
func New(fs afero.Fs, hasher *checksum.Hasher, log logger.Logger, reporter progress.Reporter) *Walker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if reporter == nil {
		reporter = progress.NullReporter{}
	}
	return &Walker{
		fs:       fs,
		hasher:   hasher,
		log:      logger.OrNop(log).With("component", "walker"),
		reporter: reporter,
	}
}

// ValidateConcurrency checks a worker count against the host's CPUs
func ValidateConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", domain.ErrConfigInvalid, n)
	}
	if cpus := runtime.NumCPU(); n > cpus {
		return fmt.Errorf("%w: requested %d, this machine has %d CPUs", domain.ErrConcurrencyExceeded, n, cpus)
	}
	return nil
}

// ResolveRoot returns the absolute, symlink-resolved form of root and
// checks that it is an existing directory
func ResolveRoot(fs afero.Fs, root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty root", domain.ErrPathNotFound)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrPathNotFound, root, err)
	}

	info, err := fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrPathNotFound, root)
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrPathNotFound, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrNotDirectory, root)
	}

	// Symlinks only exist on the real filesystem
	if _, ok := fs.(*afero.OsFs); ok {
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrPathNotFound, root, err)
		}
		abs = resolved
	}

	return abs, nil
}

// Walk hashes every accepted regular file under root. onResult is called
// from worker goroutines and must be safe for concurrent use. Walk returns
// only after every dispatched file has been reported.
//
// Preconditions (root exists, concurrency within limits) are checked before
// any traversal; per-file failures are counted and reported through
// onResult, never returned.
func (w *Walker) Walk(ctx context.Context, root string, opts Options, onResult func(HashResult)) (Stats, error) {
	var stats Stats

	if err := ValidateConcurrency(opts.Concurrency); err != nil {
		return stats, err
	}
	resolved, err := ResolveRoot(w.fs, root)
	if err != nil {
		return stats, err
	}

	w.log.Info("walking directory", "root", resolved, "concurrency", opts.Concurrency)
	w.reporter.SetTotal(0, 0)

	var mu sync.Mutex
	count := func(f func(*Stats)) {
		mu.Lock()
		f(&stats)
		mu.Unlock()
	}

	// One pool for the whole walk
	p := pool.New().WithMaxGoroutines(opts.Concurrency)

	walkErr := afero.Walk(w.fs, resolved, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == resolved {
				return fmt.Errorf("%w: %s: %v", domain.ErrPathNotFound, path, err)
			}
			w.log.Warn("cannot read entry", "path", path, "error", err)
			count(func(s *Stats) { s.Errors++ })
			w.reporter.Failed(path, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}
		if opts.Exclude.Contains(path) {
			w.log.Debug("skipping excluded file", "path", path)
			count(func(s *Stats) { s.Excluded++ })
			return nil
		}
		if !info.Mode().IsRegular() {
			w.log.Debug("skipping irregular file", "path", path, "mode", info.Mode().String())
			count(func(s *Stats) { s.Irregular++ })
			return nil
		}

		count(func(s *Stats) { s.Files++ })

		if !opts.Extensions.Accept(info.Name()) {
			count(func(s *Stats) { s.Filtered++ })
			return nil
		}
		if opts.Skip.Contains(path) {
			w.log.Debug("skipping already hashed file", "path", path)
			count(func(s *Stats) { s.Skipped++ })
			return nil
		}

		size := info.Size()
		p.Go(func() {
			w.reporter.Start(path, size)
			digest, _, err := w.hasher.Hash(ctx, path)

			res := HashResult{Path: path, Digest: digest, Size: size, Err: err}
			if err != nil {
				w.log.Error("failed to hash file", "path", path, "error", err)
				count(func(s *Stats) { s.Errors++ })
				w.reporter.Failed(path, err)
			} else {
				count(func(s *Stats) {
					s.Hashed++
					s.Bytes += size
				})
				w.reporter.Done(path, size)
			}
			onResult(res)
		})
		return nil
	})

	// Barrier: every dispatched job finishes before Walk returns
	p.Wait()

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			w.log.Warn("walk cancelled", "root", resolved)
		}
		return stats, walkErr
	}

	w.log.Info("walk complete",
		"root", resolved,
		"files", stats.Files,
		"hashed", stats.Hashed,
		"skipped", stats.Skipped,
		"excluded", stats.Excluded,
		"filtered", stats.Filtered,
		"errors", stats.Errors,
	)
	return stats, nil
}
