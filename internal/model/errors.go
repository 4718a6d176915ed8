package model

import "errors"

// Domain error taxonomy. Callers match with errors.Is; the HTTP layer
// maps these to status codes.
var (
	// ErrNotFound means the conversation, stream, or artifact does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller lacks access to a private resource.
	ErrForbidden = errors.New("forbidden")

	// ErrGenerationFailed means the generation capability errored mid-stream.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrResumeUnavailable means the resumable transport itself is down,
	// as opposed to the stream being absent.
	ErrResumeUnavailable = errors.New("resume unavailable")

	// ErrVersionConflict is an internal write race on version numbering.
	// The store retries it transparently; it never reaches callers.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDedupStoreUnavailable means the conditional key-value store failed.
	// The gate treats this as fail-closed: drop, never double-deliver.
	ErrDedupStoreUnavailable = errors.New("dedup store unavailable")
)
