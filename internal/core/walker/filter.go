package walker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Ning0612/deduplify/internal/domain"
)

// ExtensionFilter accepts files by suffix. The zero value accepts everything.
type ExtensionFilter struct {
	suffixes []string
}

// NewExtensionFilter builds a filter from a list such as ["txt", ".JPG"].
// An empty list or a "*" entry accepts all files.
func NewExtensionFilter(exts []string) ExtensionFilter {
	var f ExtensionFilter
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if ext == "*" {
			return ExtensionFilter{}
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.suffixes = append(f.suffixes, ext)
	}
	return f
}

// All reports whether the filter accepts every file
func (f ExtensionFilter) All() bool {
	return len(f.suffixes) == 0
}

// Accept reports whether the file name matches one of the suffixes
func (f ExtensionFilter) Accept(name string) bool {
	if f.All() {
		return true
	}
	lower := strings.ToLower(name)
	for _, s := range f.suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// SkipMode decides how resume runs match already-processed files
type SkipMode string

const (
	// SkipByName skips any file whose base name was processed before,
	// whatever its directory. Two different files sharing a name in
	// different directories are both skipped once either was hashed.
	SkipByName SkipMode = "name"

	// SkipByPath skips only files whose absolute path was processed before
	SkipByPath SkipMode = "path"
)

// IsValid checks if the skip mode is a known value
func (m SkipMode) IsValid() bool {
	switch m {
	case SkipByName, SkipByPath:
		return true
	}
	return false
}

// ParseSkipMode parses a mode name; empty means SkipByName
func ParseSkipMode(s string) (SkipMode, error) {
	if s == "" {
		return SkipByName, nil
	}
	m := SkipMode(strings.ToLower(s))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: unknown skip mode: %s", domain.ErrConfigInvalid, s)
	}
	return m, nil
}

// SkipSet holds the files processed by a previous run
type SkipSet struct {
	mode    SkipMode
	entries map[string]struct{}
}

// NewSkipSet builds a skip-set from previously recorded paths
func NewSkipSet(mode SkipMode, paths []string) *SkipSet {
	s := &SkipSet{mode: mode, entries: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.entries[s.key(p)] = struct{}{}
	}
	return s
}

func (s *SkipSet) key(path string) string {
	if s.mode == SkipByPath {
		return filepath.Clean(path)
	}
	return filepath.Base(path)
}

// Mode returns the matching mode
func (s *SkipSet) Mode() SkipMode {
	return s.mode
}

// Len returns the number of entries
func (s *SkipSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Contains reports whether path was processed before. A nil set contains
// nothing.
func (s *SkipSet) Contains(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[s.key(path)]
	return ok
}

// ExcludeSet names files a walk must never dispatch, either exactly or by
// path prefix. A nil set excludes nothing.
type ExcludeSet struct {
	paths    map[string]struct{}
	prefixes []string
}

// NewExcludeSet builds a set from absolute paths and path prefixes
func NewExcludeSet(paths, prefixes []string) *ExcludeSet {
	s := &ExcludeSet{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.paths[filepath.Clean(p)] = struct{}{}
	}
	for _, p := range prefixes {
		s.prefixes = append(s.prefixes, filepath.Clean(p))
	}
	return s
}

// Contains reports whether path is excluded
func (s *ExcludeSet) Contains(path string) bool {
	if s == nil {
		return false
	}
	path = filepath.Clean(path)
	if _, ok := s.paths[path]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
