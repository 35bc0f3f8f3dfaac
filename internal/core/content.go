package core

import "context"

// ContentStore is content-addressed storage for raw document bytes.
// Keys are derived from the content checksum, so putting identical bytes
// twice returns the same key and performs no duplicate write.
type ContentStore interface {
	// Put stores data and returns its content key. Idempotent. A transient
	// backend failure returns ErrStorageUnavailable and is safe to retry.
	Put(ctx context.Context, checksum string, data []byte, contentType string) (contentKey string, err error)

	// Get returns the bytes for a content key, or ErrNotFound.
	Get(ctx context.Context, contentKey string) ([]byte, error)

	// Delete removes the bytes for a content key. Deleting a missing key is
	// a no-op.
	Delete(ctx context.Context, contentKey string) error
}

// Page is one page of extracted document text.
type Page struct {
	Number int
	Text   string
}

// DocumentExtractor parses raw document bytes into per-page text.
type DocumentExtractor interface {
	// ExtractPages returns the document's pages in order. An empty or
	// unparseable document returns ErrEmptyDocument.
	ExtractPages(ctx context.Context, data []byte, contentType string) ([]Page, error)
}
