// Package cleanup removes directories left empty after a purge.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
)

// Result counts what a cleanup pass did
type Result struct {
	Visited int
	Removed []string
	Errors  int
}

// RemoveEmptyDirs deletes every empty directory below root, deepest first,
// so a parent emptied by its children's removal goes too. root itself is
// never removed. With dryRun nothing is deleted but Removed lists what
// would be.
func RemoveEmptyDirs(ctx context.Context, fs afero.Fs, log logger.Logger, root string, dryRun bool) (Result, error) {
	log = logger.OrNop(log).With("component", "cleanup")
	var res Result

	info, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return res, fmt.Errorf("%w: %s", domain.ErrPathNotFound, root)
		}
		return res, fmt.Errorf("%w: %s: %v", domain.ErrPathNotFound, root, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%w: %s", domain.ErrNotDirectory, root)
	}
	root = filepath.Clean(root)

	// Collect directories and how many entries each holds
	var dirs []string
	entries := make(map[string]int)
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.Warn("cannot read entry", "path", path, "error", err)
			res.Errors++
			// Unknown contents: never treat the parent as empty
			entries[filepath.Dir(path)]++
			if info != nil && info.IsDir() {
				// nor the unreadable directory itself
				entries[path]++
				return filepath.SkipDir
			}
			return nil
		}
		if path != root {
			entries[filepath.Dir(path)]++
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Visited = len(dirs)

	// Deepest first
	sort.Slice(dirs, func(i, j int) bool {
		return len(dirs[i]) > len(dirs[j])
	})

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if dir == root || entries[dir] > 0 {
			continue
		}

		if !dryRun {
			if err := fs.Remove(dir); err != nil {
				log.Error("failed to remove directory", "path", dir, "error", err)
				res.Errors++
				continue
			}
			log.Debug("removed empty directory", "path", dir)
		}
		res.Removed = append(res.Removed, dir)
		entries[filepath.Dir(dir)]--
	}

	sort.Strings(res.Removed)
	log.Info("cleanup complete", "root", root, "visited", res.Visited, "removed", len(res.Removed), "dry_run", dryRun)
	return res, nil
}
