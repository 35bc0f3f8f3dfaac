package core

import "errors"

// Sentinel errors shared by the stores, the pipeline and the services.
// Store-layer errors propagate unchanged to callers; handlers map them to
// HTTP statuses with errors.Is.
var (
	// ErrNotFound is returned for a lookup of a document, chunk, chat,
	// project or content key that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition guards the document status state machine. It is
	// fatal to the current operation and never silently ignored; in
	// particular an in-flight ingest that tries to mark an already-deleting
	// document ready fails with this instead of resurrecting it.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageUnavailable signals a transient object-storage failure.
	// The operation is safe to retry; no partial write is observable.
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// ErrEmptyDocument means extraction produced no text. Distinct from a
	// transient error: the document is marked failed, never ready.
	ErrEmptyDocument = errors.New("document has no extractable text")

	// ErrInvalidFile rejects uploads that are not the accepted document
	// format (magic-byte check, not just the extension).
	ErrInvalidFile = errors.New("invalid or unsupported file")

	// ErrFileTooLarge rejects uploads above the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrScopeNotFound rejects an upload or listing against a chat or
	// project that does not exist or is not owned by the caller. Ownership
	// and existence are deliberately indistinguishable to the caller.
	ErrScopeNotFound = errors.New("scope not found")

	// ErrUnauthorized rejects requests without a valid authenticated user.
	ErrUnauthorized = errors.New("unauthorized")
)
