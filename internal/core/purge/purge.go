// Package purge deletes confirmed duplicates on a bounded worker pool.
package purge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
	"github.com/Ning0612/deduplify/internal/progress"
)

// Executor removes files. Deletion is not transactional: a failed path is
// recorded and the batch continues.
type Executor struct {
	fs       afero.Fs
	log      logger.Logger
	reporter progress.Reporter
}

// NewExecutor creates an executor; nil arguments select the OS filesystem,
// a no-op logger and a no-op reporter
func NewExecutor(fs afero.Fs, log logger.Logger, reporter progress.Reporter) *Executor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if reporter == nil {
		reporter = progress.NullReporter{}
	}
	return &Executor{
		fs:       fs,
		log:      logger.OrNop(log).With("component", "purge"),
		reporter: reporter,
	}
}

// Purge deletes every path using at most concurrency workers. Results come
// back in input order. Paths not yet started when ctx is cancelled are
// reported with the context error.
func (e *Executor) Purge(ctx context.Context, paths []string, concurrency int) domain.PurgeReport {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]domain.PurgeResult, len(paths))
	e.reporter.SetTotal(len(paths), 0)

	p := pool.New().WithMaxGoroutines(concurrency)
	for i, path := range paths {
		p.Go(func() {
			results[i] = domain.PurgeResult{Path: path, Err: e.remove(ctx, path)}
		})
	}
	p.Wait()

	report := domain.PurgeReport{Results: results}
	for _, r := range results {
		if r.OK() {
			report.Deleted++
		} else {
			report.Failed++
		}
	}

	e.log.Info("purge complete", "deleted", report.Deleted, "failed", report.Failed)
	return report
}

func (e *Executor) remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		e.reporter.Failed(path, err)
		return err
	}

	var size int64
	info, err := e.fs.Stat(path)
	if err == nil {
		if info.IsDir() {
			err = fmt.Errorf("%w: %s is a directory", domain.ErrPermissionDenied, path)
			e.log.Error("refusing to delete directory", "path", path)
			e.reporter.Failed(path, err)
			return err
		}
		size = info.Size()
	}

	e.reporter.Start(path, size)
	if err := e.fs.Remove(path); err != nil {
		err = classify(path, err)
		e.log.Error("failed to delete file", "path", path, "error", err)
		e.reporter.Failed(path, err)
		return err
	}

	e.log.Debug("deleted file", "path", path)
	e.reporter.Done(path, size)
	return nil
}

// classify maps a filesystem error onto the per-file sentinels
func classify(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s: %v", domain.ErrPermissionDenied, path, err)
	default:
		return fmt.Errorf("%w: delete %s: %v", domain.ErrIO, path, err)
	}
}
