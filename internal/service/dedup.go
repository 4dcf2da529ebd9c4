package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Ning0612/deduplify/internal/config"
	"github.com/Ning0612/deduplify/internal/core/checksum"
	"github.com/Ning0612/deduplify/internal/core/cleanup"
	"github.com/Ning0612/deduplify/internal/core/purge"
	"github.com/Ning0612/deduplify/internal/core/retention"
	"github.com/Ning0612/deduplify/internal/core/walker"
	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/index"
	"github.com/Ning0612/deduplify/internal/lock"
	"github.com/Ning0612/deduplify/internal/logger"
	"github.com/Ning0612/deduplify/internal/progress"
	"github.com/Ning0612/deduplify/internal/state"
)

// Command names recorded in locks and run history
const (
	CommandHash    = "hash"
	CommandCompare = "compare"
	CommandClean   = "clean"
)

// historyRecorder is implemented by stores that keep run history
type historyRecorder interface {
	SaveRun(record state.RunRecord) error
	GetLastSuccess(command string) (*state.RunRecord, error)
}

// DedupService orchestrates hash, compare and clean runs
type DedupService struct {
	fs       afero.Fs
	log      logger.Logger
	reporter progress.Reporter
	newRunID func() string
}

// Option configures a DedupService
type Option func(*DedupService)

// WithFs sets the filesystem walked, hashed and purged.
// The index itself always lives on the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *DedupService) {
		s.fs = fs
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *DedupService) {
		s.log = l
	}
}

// WithReporter sets the progress reporter used for hashing and purging
func WithReporter(r progress.Reporter) Option {
	return func(s *DedupService) {
		s.reporter = r
	}
}

// NewDedupService creates a service
func NewDedupService(opts ...Option) *DedupService {
	s := &DedupService{
		fs:       afero.NewOsFs(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log)
	if s.reporter == nil {
		s.reporter = progress.NullReporter{}
	}
	return s
}

// run carries the per-run bookkeeping shared by the subcommands
type run struct {
	id      string
	command string
	start   time.Time
	sm      *domain.RunStateMachine
	log     logger.Logger
	lock    *lock.IndexLock
}

func (s *DedupService) begin(command string) *run {
	id := s.newRunID()
	return &run{
		id:      id,
		command: command,
		start:   time.Now(),
		sm:      domain.NewRunStateMachine(),
		log:     s.log.With("run_id", id, "command", command),
	}
}

// to moves the state machine; an invalid transition is a bug
func (r *run) to(state domain.RunState) error {
	if err := r.sm.Transition(state); err != nil {
		return fmt.Errorf("run %s: %w", r.id, err)
	}
	r.log.Debug("run state", "state", state)
	return nil
}

// fail aborts the run and returns err
func (r *run) fail(err error) error {
	r.sm.Abort()
	if domain.IsFatal(err) {
		r.log.Error("run precondition failed", "state", r.sm.History(), "error", err)
	} else {
		r.log.Error("run aborted", "error", err)
	}
	return err
}

func (r *run) acquire(indexPath string) error {
	l, err := lock.ForIndex(indexPath)
	if err != nil {
		return err
	}
	if err := l.Acquire(r.command, r.id); err != nil {
		return err
	}
	r.lock = l
	return nil
}

func (r *run) release() {
	if r.lock == nil {
		return
	}
	if err := r.lock.Release(); err != nil {
		r.log.Error("failed to release index lock", "error", err)
	}
}

// record saves the run in stores that keep history
func (r *run) record(store state.Store, summary domain.RunSummary, runErr error) {
	h, ok := store.(historyRecorder)
	if !ok {
		return
	}

	status := state.StatusSuccess
	errCount := summary.HashErrors + summary.PurgeErrors
	switch {
	case runErr != nil:
		status = state.StatusFailed
	case errCount > 0:
		status = state.StatusPartial
	}

	rec := state.RunRecord{
		RunID:        r.id,
		Command:      r.command,
		StartTime:    r.start,
		EndTime:      time.Now(),
		Status:       status,
		FilesHashed:  summary.FilesHashed,
		FilesDeleted: summary.Deleted,
		Errors:       errCount,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := h.SaveRun(rec); err != nil {
		r.log.Warn("failed to record run history", "error", err)
	}
}

// logLastSuccess notes when this command last completed cleanly
func (r *run) logLastSuccess(store state.Store) {
	h, ok := store.(historyRecorder)
	if !ok {
		return
	}
	last, err := h.GetLastSuccess(r.command)
	if err != nil {
		r.log.Warn("failed to read run history", "error", err)
		return
	}
	if last == nil {
		r.log.Info("no earlier successful run recorded", "command", r.command)
		return
	}
	r.log.Info("last successful run", "run_id", last.RunID, "finished", last.EndTime, "files_hashed", last.FilesHashed)
}

// indexExclusions lists the files a run writes next to indexPath so a
// walk over a tree containing the index never hashes them. Paths are
// symlink-resolved like walk roots.
func indexExclusions(indexPath string) *walker.ExcludeSet {
	abs, err := filepath.Abs(indexPath)
	if err != nil {
		return nil
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	paths := append(state.Files(abs), abs+lock.Suffix)
	return walker.NewExcludeSet(paths, []string{state.TempPrefix(abs)})
}

// Hash walks cfg.Root, hashes every accepted file into the index at
// cfg.Index and classifies the result.
func (s *DedupService) Hash(ctx context.Context, cfg config.HashConfig) (domain.RunSummary, error) {
	r := s.begin(CommandHash)
	summary := domain.RunSummary{RunID: r.id}

	if err := cfg.Validate(); err != nil {
		return summary, r.fail(err)
	}
	root, err := walker.ResolveRoot(s.fs, cfg.Root)
	if err != nil {
		return summary, r.fail(err)
	}
	hasher, err := checksum.NewHasher(s.fs, checksum.NewDefaultCalculator(), cfg.Algorithm)
	if err != nil {
		return summary, r.fail(err)
	}

	if err := r.acquire(cfg.Index); err != nil {
		return summary, r.fail(fmt.Errorf("failed to lock index: %w", err))
	}
	defer r.release()

	if cfg.Restart {
		if !state.Exists(cfg.Index) {
			return summary, r.fail(fmt.Errorf("%w: %s", domain.ErrResumeStateMissing, cfg.Index))
		}
	} else if state.Exists(cfg.Index) {
		r.log.Warn("removing existing index", "path", cfg.Index)
		if err := state.Remove(cfg.Index); err != nil {
			return summary, r.fail(err)
		}
	}

	store, err := state.Open(cfg.Index)
	if err != nil {
		return summary, r.fail(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.log.Error("failed to close index", "error", err)
		}
	}()

	ix := index.New(store, index.WithFlushEvery(cfg.FlushEvery), index.WithLogger(r.log))

	var skip *walker.SkipSet
	if cfg.Restart {
		if err := ix.Load(ctx); err != nil {
			return summary, r.fail(err)
		}
		skip = walker.NewSkipSet(cfg.SkipMode, ix.Paths())
		r.log.Info("resuming from existing index", "files", skip.Len(), "skip_mode", skip.Mode())
		r.logLastSuccess(store)
	}

	if err := r.to(domain.RunWalking); err != nil {
		return summary, r.fail(err)
	}

	var (
		mu        sync.Mutex
		insertErr error
	)
	onResult := func(res walker.HashResult) {
		if res.Err != nil {
			return
		}
		if err := ix.Insert(ctx, res.Digest, res.Path, res.Size); err != nil {
			mu.Lock()
			if insertErr == nil {
				insertErr = err
			}
			mu.Unlock()
		}
	}

	if err := r.to(domain.RunHashing); err != nil {
		return summary, r.fail(err)
	}
	w := walker.New(s.fs, hasher, r.log, s.reporter)
	stats, err := w.Walk(ctx, root, walker.Options{
		Concurrency: cfg.Concurrency,
		Extensions:  walker.NewExtensionFilter(cfg.Extensions),
		Skip:        skip,
		Exclude:     indexExclusions(cfg.Index),
	}, onResult)

	summary.FilesHashed = stats.Hashed
	if stats.Excluded > 0 {
		r.log.Debug("index files inside the walked tree were skipped", "count", stats.Excluded)
	}
	summary.FilesSkipped = stats.Skipped
	summary.HashErrors = stats.Errors

	// Whatever was hashed before a failure stays resumable
	if syncErr := ix.Sync(); syncErr != nil && err == nil {
		err = syncErr
	}
	if err == nil {
		err = insertErr
	}
	if err != nil {
		r.record(store, summary, err)
		return summary, r.fail(err)
	}

	if err := r.to(domain.RunClassified); err != nil {
		return summary, r.fail(err)
	}
	if err := ix.Classify(ctx); err != nil {
		r.record(store, summary, err)
		return summary, r.fail(err)
	}
	fillIndexStats(&summary, ix.Stats())

	if err := r.to(domain.RunDone); err != nil {
		return summary, r.fail(err)
	}

	var runErr error
	if summary.FilesHashed == 0 && summary.HashErrors > 0 {
		runErr = fmt.Errorf("%w: %d files failed to hash", domain.ErrNothingProcessed, summary.HashErrors)
	}
	r.record(store, summary, runErr)

	r.log.Info("hash run complete",
		"root", root,
		"hashed", summary.FilesHashed,
		"skipped", summary.FilesSkipped,
		"unique", summary.UniqueFiles,
		"duplicate_groups", summary.DuplicateGroups,
		"errors", summary.HashErrors,
	)
	return summary, runErr
}

// Compare resolves every duplicate group in the index and, when
// cfg.ApplyDeletions is set, purges the files marked for deletion.
// Decisions are returned in digest order.
func (s *DedupService) Compare(ctx context.Context, cfg config.CompareConfig) (domain.RunSummary, []domain.RetentionDecision, error) {
	r := s.begin(CommandCompare)
	summary := domain.RunSummary{RunID: r.id}

	if err := cfg.Validate(); err != nil {
		return summary, nil, r.fail(err)
	}
	strategy, err := retention.ForName(cfg.Strategy)
	if err != nil {
		return summary, nil, r.fail(err)
	}
	if !state.Exists(cfg.Index) {
		return summary, nil, r.fail(fmt.Errorf("%w: %s (run hash first)", domain.ErrResumeStateMissing, cfg.Index))
	}

	if err := r.acquire(cfg.Index); err != nil {
		return summary, nil, r.fail(fmt.Errorf("failed to lock index: %w", err))
	}
	defer r.release()

	store, err := state.Open(cfg.Index)
	if err != nil {
		return summary, nil, r.fail(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.log.Error("failed to close index", "error", err)
		}
	}()

	ix := index.New(store, index.WithLogger(r.log))
	if err := ix.Load(ctx); err != nil {
		return summary, nil, r.fail(err)
	}
	r.log.Info("index loaded", "path", cfg.Index, "files", ix.Len())

	if err := r.to(domain.RunClassified); err != nil {
		return summary, nil, r.fail(err)
	}
	if err := ix.Classify(ctx); err != nil {
		return summary, nil, r.fail(err)
	}
	fillIndexStats(&summary, ix.Stats())

	digests := ix.DuplicateDigests()
	if len(digests) == 0 {
		r.log.Info("no duplicates to compare")
		if err := r.to(domain.RunDone); err != nil {
			return summary, nil, r.fail(err)
		}
		r.record(store, summary, nil)
		return summary, nil, nil
	}

	if err := r.to(domain.RunResolving); err != nil {
		return summary, nil, r.fail(err)
	}

	decisions := make([]domain.RetentionDecision, 0, len(digests))
	var toDelete []string
	for _, digest := range digests {
		group := ix.Group(digest)
		d := strategy.Resolve(digest, group)
		decisions = append(decisions, d)

		if d.Ambiguous {
			summary.AmbiguousGroups++
			r.log.Warn("duplicate group needs manual review",
				"digest", digest,
				"reason", d.Reason,
				"candidates", d.Candidates,
			)
			continue
		}

		deletable := d.Deletable()
		summary.EligibleForDeletion += len(deletable)
		if len(group) > 0 {
			summary.BytesReclaimable += group[0].Size * int64(len(deletable))
		}
		toDelete = append(toDelete, deletable...)
		r.log.Debug("resolved duplicate group", "digest", digest, "kept", d.Kept, "delete", deletable)
	}

	if !cfg.ApplyDeletions {
		if err := r.to(domain.RunIdle); err != nil {
			return summary, decisions, r.fail(err)
		}
		if err := r.to(domain.RunDone); err != nil {
			return summary, decisions, r.fail(err)
		}
		r.record(store, summary, nil)
		return summary, decisions, nil
	}

	if err := r.to(domain.RunPurging); err != nil {
		return summary, decisions, r.fail(err)
	}

	report := purge.NewExecutor(s.fs, r.log, s.reporter).Purge(ctx, toDelete, cfg.Concurrency)
	summary.Deleted = report.Deleted
	summary.PurgeErrors = report.Failed
	for _, f := range report.Failures() {
		r.log.Warn("file not deleted", "path", f.Path, "error", f.Err)
	}

	if err := r.to(domain.RunDone); err != nil {
		return summary, decisions, r.fail(err)
	}

	var runErr error
	if report.Deleted == 0 && report.Failed > 0 {
		runErr = fmt.Errorf("%w: %d deletions failed", domain.ErrNothingProcessed, report.Failed)
	}
	r.record(store, summary, runErr)

	r.log.Info("compare run complete",
		"duplicate_groups", summary.DuplicateGroups,
		"ambiguous", summary.AmbiguousGroups,
		"eligible", summary.EligibleForDeletion,
		"deleted", summary.Deleted,
		"errors", summary.PurgeErrors,
	)
	return summary, decisions, runErr
}

// Clean removes directories left empty under cfg.Root
func (s *DedupService) Clean(ctx context.Context, cfg config.CleanConfig) (cleanup.Result, error) {
	r := s.begin(CommandClean)

	if err := cfg.Validate(); err != nil {
		return cleanup.Result{}, r.fail(err)
	}
	root, err := walker.ResolveRoot(s.fs, cfg.Root)
	if err != nil {
		return cleanup.Result{}, r.fail(err)
	}

	res, err := cleanup.RemoveEmptyDirs(ctx, s.fs, r.log, root, cfg.DryRun)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.log.Warn("cleanup cancelled", "root", root)
		}
		return res, r.fail(err)
	}
	return res, nil
}

// History returns recent runs recorded in the index at path, newest first
func (s *DedupService) History(path string, limit int) ([]state.RunRecord, error) {
	if state.BackendFor(path) != state.BackendSQLite {
		return nil, fmt.Errorf("%w: run history needs a SQLite index, got %s", domain.ErrConfigInvalid, path)
	}
	if !state.Exists(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrResumeStateMissing, path)
	}

	store, err := state.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.GetHistory(limit)
}

// ListQuery selects records of an index
type ListQuery struct {
	// Digest selects one digest group and takes precedence over Duplicates
	Digest string
	// Duplicates selects duplicate records when true and unique ones when
	// false. Nil selects every record.
	Duplicates *bool
}

// List returns the records of the index at path matching q. Only records
// classified by a completed hash or compare run match Duplicates.
func (s *DedupService) List(ctx context.Context, path string, q ListQuery) ([]domain.FileRecord, error) {
	if !state.Exists(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrResumeStateMissing, path)
	}

	store, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	switch {
	case q.Digest != "":
		return store.FindByDigest(ctx, q.Digest)
	case q.Duplicates != nil:
		return store.FindByDuplicate(ctx, *q.Duplicates)
	default:
		return store.All(ctx)
	}
}

// UnlockResult describes the lock file found next to an index
type UnlockResult struct {
	LockPath string
	// Holder is the live run holding the lock, nil when free or stale
	Holder  *lock.Holder
	Removed bool
}

// Unlock removes the lock file of the index at indexPath. Stale locks are
// always removed; a lock held by a live run only when force is set,
// otherwise a *lock.LockError is returned.
func (s *DedupService) Unlock(indexPath string, force bool) (UnlockResult, error) {
	l, err := lock.ForIndex(indexPath)
	if err != nil {
		return UnlockResult{}, err
	}
	res := UnlockResult{LockPath: l.Path()}

	if l.IsLocked() {
		if holder, err := l.Holder(); err == nil {
			res.Holder = holder
		}
		if !force {
			return res, &lock.LockError{Holder: res.Holder, Reason: "index is in use, rerun with --force to remove the lock"}
		}
		if res.Holder != nil {
			s.log.Warn("removing lock held by a live run",
				"path", res.LockPath,
				"pid", res.Holder.PID,
				"command", res.Holder.Command,
				"run_id", res.Holder.RunID,
			)
		}
	}

	res.Removed, err = l.ForceRelease()
	if err != nil {
		return res, err
	}
	if res.Removed {
		s.log.Info("index lock removed", "path", res.LockPath)
	}
	return res, nil
}

func fillIndexStats(summary *domain.RunSummary, st index.Stats) {
	summary.UniqueFiles = st.UniqueFiles
	summary.DuplicateGroups = st.DuplicateGroups
	summary.DuplicateFiles = st.DuplicateFiles
}
