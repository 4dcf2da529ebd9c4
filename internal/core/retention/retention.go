// Package retention decides which file of a duplicate group survives.
// Strategies only classify; they never touch the filesystem.
package retention

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Ning0612/deduplify/internal/domain"
)

// Strategy resolves a duplicate group into a retention decision
type Strategy interface {
	// Name returns the identifier used in configuration
	Name() string

	// Resolve decides which of records (all sharing digest) to keep
	Resolve(digest string, records []domain.FileRecord) domain.RetentionDecision
}

// Strategy names
const (
	NameShortestPath = "shortest-path"
	NameManual       = "manual"
)

// DefaultStrategy is used when none is configured
const DefaultStrategy = NameShortestPath

// Decision reasons
const (
	ReasonSingle       = "single file"
	ReasonShortestPath = "identical names, kept shortest path"
	ReasonEqualLength  = "equal-length names differ"
	ReasonNamesDiffer  = "names differ"
	ReasonManual       = "manual review requested"
)

// ForName returns the strategy registered under name.
// An empty name selects DefaultStrategy.
func ForName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameShortestPath:
		return ShortestPath{}, nil
	case NameManual:
		return Manual{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown retention strategy: %s", domain.ErrConfigInvalid, name)
	}
}

// Names lists the available strategies
func Names() []string {
	return []string{NameShortestPath, NameManual}
}

// sortedPaths returns the unique paths of records in lexicographic order
func sortedPaths(records []domain.FileRecord) []string {
	seen := make(map[string]struct{}, len(records))
	paths := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		paths = append(paths, r.Path)
	}
	sort.Strings(paths)
	return paths
}

func ambiguous(digest string, candidates []string, reason string) domain.RetentionDecision {
	return domain.RetentionDecision{
		Digest:     digest,
		Ambiguous:  true,
		Reason:     reason,
		Candidates: candidates,
	}
}

// ShortestPath keeps the shortest path when every candidate has the same
// base name. Any difference in base names makes the group ambiguous.
type ShortestPath struct{}

// Name implements Strategy
func (ShortestPath) Name() string { return NameShortestPath }

// Resolve implements Strategy
func (ShortestPath) Resolve(digest string, records []domain.FileRecord) domain.RetentionDecision {
	candidates := sortedPaths(records)

	switch len(candidates) {
	case 0:
		return ambiguous(digest, candidates, "empty group")
	case 1:
		return domain.RetentionDecision{
			Digest:     digest,
			Kept:       candidates[0],
			ToDelete:   []string{},
			Reason:     ReasonSingle,
			Candidates: candidates,
		}
	}

	first := filepath.Base(candidates[0])
	sameName, sameLen := true, true
	for _, p := range candidates[1:] {
		base := filepath.Base(p)
		if base != first {
			sameName = false
		}
		if len(base) != len(first) {
			sameLen = false
		}
	}

	if !sameName {
		if sameLen {
			return ambiguous(digest, candidates, ReasonEqualLength)
		}
		return ambiguous(digest, candidates, ReasonNamesDiffer)
	}

	// Candidates are sorted, so the first shortest wins ties
	keep := 0
	for i, p := range candidates {
		if len(p) < len(candidates[keep]) {
			keep = i
		}
	}

	toDelete := make([]string, 0, len(candidates)-1)
	for i, p := range candidates {
		if i != keep {
			toDelete = append(toDelete, p)
		}
	}

	return domain.RetentionDecision{
		Digest:     digest,
		Kept:       candidates[keep],
		ToDelete:   toDelete,
		Reason:     ReasonShortestPath,
		Candidates: candidates,
	}
}

// Manual never auto-resolves; every group with more than one file is
// left for review
type Manual struct{}

// Name implements Strategy
func (Manual) Name() string { return NameManual }

// Resolve implements Strategy
func (Manual) Resolve(digest string, records []domain.FileRecord) domain.RetentionDecision {
	candidates := sortedPaths(records)
	if len(candidates) == 1 {
		return ShortestPath{}.Resolve(digest, records)
	}
	return ambiguous(digest, candidates, ReasonManual)
}
