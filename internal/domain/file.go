package domain

// DuplicateState is the tri-state duplicate flag of a FileRecord
type DuplicateState int

const (
	// DuplicateUnknown is the state of a record before classification
	DuplicateUnknown DuplicateState = iota
	// DuplicateYes marks a record whose digest is shared by at least two records
	DuplicateYes
	// DuplicateNo marks a record whose digest is unique in the index
	DuplicateNo
)

// String returns the string representation of the state
func (s DuplicateState) String() string {
	switch s {
	case DuplicateYes:
		return "duplicate"
	case DuplicateNo:
		return "unique"
	default:
		return "unknown"
	}
}

// Known reports whether the record has been classified
func (s DuplicateState) Known() bool {
	return s == DuplicateYes || s == DuplicateNo
}

// DuplicateStateFromBool converts a classification result into a DuplicateState
func DuplicateStateFromBool(dup bool) DuplicateState {
	if dup {
		return DuplicateYes
	}
	return DuplicateNo
}

// FileRecord represents one hashed file
type FileRecord struct {
	// Path is absolute and stable across the run
	Path string `json:"path"`

	// Digest is the hex-encoded content hash
	Digest string `json:"digest"`

	// Size in bytes at hashing time (0 when loaded from a store that
	// does not keep sizes)
	Size int64 `json:"size,omitempty"`

	// Duplicate is set once by classification
	Duplicate DuplicateState `json:"-"`
}

// IsDuplicate returns true if the record was classified as a duplicate
func (r FileRecord) IsDuplicate() bool {
	return r.Duplicate == DuplicateYes
}
