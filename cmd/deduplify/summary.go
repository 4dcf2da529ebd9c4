package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/deduplify/internal/domain"
)

func count(n int) string {
	return humanize.Comma(int64(n))
}

func printHashSummary(w io.Writer, s domain.RunSummary) {
	fmt.Fprintf(w, "Files hashed:      %s\n", count(s.FilesHashed))
	if s.FilesSkipped > 0 {
		fmt.Fprintf(w, "Files skipped:     %s\n", count(s.FilesSkipped))
	}
	fmt.Fprintf(w, "Unique files:      %s\n", count(s.UniqueFiles))
	fmt.Fprintf(w, "Duplicate groups:  %s (%s files)\n", count(s.DuplicateGroups), count(s.DuplicateFiles))
	fmt.Fprintf(w, "Hash errors:       %s\n", count(s.HashErrors))
}

func printCompareSummary(w io.Writer, s domain.RunSummary, purged bool) {
	fmt.Fprintf(w, "Duplicate groups:  %s (%s files)\n", count(s.DuplicateGroups), count(s.DuplicateFiles))
	fmt.Fprintf(w, "Needs review:      %s groups\n", count(s.AmbiguousGroups))
	fmt.Fprintf(w, "Deletable:         %s files", count(s.EligibleForDeletion))
	if s.BytesReclaimable > 0 {
		fmt.Fprintf(w, " (%s)", humanize.IBytes(uint64(s.BytesReclaimable)))
	}
	fmt.Fprintln(w)
	if purged {
		fmt.Fprintf(w, "Deleted:           %s\n", count(s.Deleted))
		fmt.Fprintf(w, "Delete errors:     %s\n", count(s.PurgeErrors))
	}
}

// printDecisions lists what compare decided per group. Ambiguous groups
// are always listed; resolved groups only when nothing was deleted.
func printDecisions(w io.Writer, decisions []domain.RetentionDecision, purged bool) {
	for _, d := range decisions {
		if d.Ambiguous {
			fmt.Fprintf(w, "review %s (%s):\n", d.Digest, d.Reason)
			for _, p := range d.Candidates {
				fmt.Fprintf(w, "    %s\n", p)
			}
			continue
		}
		if purged || len(d.ToDelete) == 0 {
			continue
		}
		fmt.Fprintf(w, "keep   %s\n", d.Kept)
		for _, p := range d.ToDelete {
			fmt.Fprintf(w, "delete %s\n", p)
		}
	}
}
