package domain

// RetentionDecision describes which file of a duplicate group is kept
//
// Decisions are computed per compare run and never persisted.
type RetentionDecision struct {
	// Digest shared by every candidate
	Digest string

	// Kept is the path that survives (empty when Ambiguous)
	Kept string

	// ToDelete lists the remaining paths in lexicographic order
	ToDelete []string

	// Ambiguous marks groups that need human review; they never
	// contribute to deletion output
	Ambiguous bool

	// Reason explains the decision
	Reason string

	// Candidates is the sorted list of every path in the group
	Candidates []string
}

// Deletable returns the paths that may be deleted for this decision
func (d RetentionDecision) Deletable() []string {
	if d.Ambiguous {
		return nil
	}
	return d.ToDelete
}

// PurgeResult is the outcome of deleting one path
type PurgeResult struct {
	Path string
	Err  error
}

// OK returns true if the path was deleted
func (r PurgeResult) OK() bool {
	return r.Err == nil
}

// PurgeReport aggregates a purge batch
type PurgeReport struct {
	// Results in the order the paths were given
	Results []PurgeResult
	Deleted int
	Failed  int
}

// Failures returns the failed results
func (r PurgeReport) Failures() []PurgeResult {
	var failed []PurgeResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}
