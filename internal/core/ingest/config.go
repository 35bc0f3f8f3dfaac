package ingest

// Config tunes the ingestion pipeline.
//
// TargetTokens:  approximate tokens per chunk (e.g. 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed.
// BatchSize:     how many chunks to embed in one provider call.
// Workers:       worker goroutines draining the job queue.
type Config struct {
	TargetTokens  int
	OverlapTokens int
	BatchSize     int
	Workers       int
}

// fragment is one extracted line of text with the page it came from.
type fragment struct {
	Page int
	Text string
}

// draft is a chunk before embedding: stable zero-based index, the page of
// its first fragment, and an approximate token count.
type draft struct {
	Index  int
	Page   int
	Text   string
	Tokens int
}
