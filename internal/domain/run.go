package domain

import "fmt"

// RunState is a stage of a dedup run
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunWalking    RunState = "walking"
	RunHashing    RunState = "hashing"
	RunClassified RunState = "classified"
	RunResolving  RunState = "resolving"
	RunIdle       RunState = "idle"
	RunPurging    RunState = "purging"
	RunDone       RunState = "done"
	RunAborted    RunState = "aborted"
)

// IsTerminal reports whether the state is terminal
func (s RunState) IsTerminal() bool {
	return s == RunDone || s == RunAborted
}

// RunStateMachine tracks the stage of a single run.
// It is not safe for concurrent use; only the orchestrator advances it.
type RunStateMachine struct {
	current RunState
	history []RunState
}

// NewRunStateMachine creates a state machine in RunNotStarted
func NewRunStateMachine() *RunStateMachine {
	return &RunStateMachine{
		current: RunNotStarted,
		history: []RunState{RunNotStarted},
	}
}

// Current returns the current state
func (m *RunStateMachine) Current() RunState {
	return m.current
}

// History returns every state visited, in order
func (m *RunStateMachine) History() []RunState {
	out := make([]RunState, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves to the next state if the transition is allowed
func (m *RunStateMachine) Transition(to RunState) error {
	if !isAllowedTransition(m.current, to) {
		return fmt.Errorf("disallowed run transition: %s -> %s", m.current, to)
	}
	m.current = to
	m.history = append(m.history, to)
	return nil
}

// Abort moves a non-terminal run to RunAborted
func (m *RunStateMachine) Abort() {
	if m.current.IsTerminal() {
		return
	}
	m.current = RunAborted
	m.history = append(m.history, RunAborted)
}

func isAllowedTransition(from, to RunState) bool {
	if to == RunAborted {
		return !from.IsTerminal()
	}
	switch from {
	case RunNotStarted:
		// compare runs start from a persisted index and skip the walk
		return to == RunWalking || to == RunClassified
	case RunWalking:
		return to == RunHashing
	case RunHashing:
		return to == RunClassified
	case RunClassified:
		return to == RunResolving || to == RunDone
	case RunResolving:
		return to == RunIdle || to == RunPurging
	case RunIdle, RunPurging:
		return to == RunDone
	default:
		return false
	}
}

// RunSummary is reported at the end of every run
type RunSummary struct {
	RunID               string
	FilesHashed         int
	FilesSkipped        int
	UniqueFiles         int
	DuplicateGroups     int
	DuplicateFiles      int
	EligibleForDeletion int
	BytesReclaimable    int64
	Deleted             int
	HashErrors          int
	PurgeErrors         int
	AmbiguousGroups     int
}
