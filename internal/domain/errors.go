package domain

import "errors"

// Precondition errors - abort the run before any work is performed
var (
	// ErrPathNotFound indicates the root directory does not exist
	ErrPathNotFound = errors.New("path not found")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrConcurrencyExceeded indicates more workers were requested than the host has CPUs
	ErrConcurrencyExceeded = errors.New("requested concurrency exceeds available CPUs")

	// ErrResumeStateMissing indicates a resume run was requested without a prior index
	ErrResumeStateMissing = errors.New("no persisted index to resume from")

	// ErrStateCorrupt indicates the persisted index could not be decoded
	ErrStateCorrupt = errors.New("persisted index is corrupt")

	// ErrNothingProcessed indicates every file in a batch failed
	ErrNothingProcessed = errors.New("no files were processed successfully")
)

// Per-file errors - recorded and summarized, never fatal to the batch
var (
	// ErrIO indicates a file could not be read while hashing
	ErrIO = errors.New("i/o error")

	// ErrNotFound indicates the file does not exist
	ErrNotFound = errors.New("file not found")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file or flags are malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// IsFatal reports whether err must abort the run
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrPathNotFound),
		errors.Is(err, ErrNotDirectory),
		errors.Is(err, ErrConcurrencyExceeded),
		errors.Is(err, ErrResumeStateMissing),
		errors.Is(err, ErrStateCorrupt),
		errors.Is(err, ErrConfigInvalid),
		errors.Is(err, ErrConfigNotFound):
		return true
	}
	return false
}
