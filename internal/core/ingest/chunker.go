package ingest

import (
	"strings"

	"github.com/docurag/docurag/internal/core"
)

// buildChunks groups page text into token-bounded chunks with overlap.
// Chunk indexes are contiguous from zero; a chunk carries the page number
// of its first fragment. Chunking is deterministic: the same pages with the
// same knobs always yield the same chunk set, which is what makes
// re-ingestion idempotent together with deterministic chunk ids.
func buildChunks(pages []core.Page, targetTokens, overlapTokens int) []draft {
	if targetTokens <= 0 {
		targetTokens = 500
	}

	var (
		out    []draft
		buf    []fragment
		tokSum int
	)

	flush := func() {
		if tokSum == 0 {
			return
		}
		lines := make([]string, len(buf))
		for i, f := range buf {
			lines[i] = f.Text
		}
		out = append(out, draft{
			Index:  len(out),
			Page:   buf[0].Page,
			Text:   strings.Join(lines, "\n"),
			Tokens: tokSum,
		})

		// Keep a tail whose token sum is roughly overlapTokens as the seed
		// of the next chunk.
		if overlapTokens > 0 {
			var keep []fragment
			remain := overlapTokens
			for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
				keep = append([]fragment{buf[j]}, keep...)
				remain -= approxTokens(buf[j].Text)
			}
			buf = keep
			tokSum = 0
			for _, f := range buf {
				tokSum += approxTokens(f.Text)
			}
		} else {
			buf = buf[:0]
			tokSum = 0
		}
	}

	for _, page := range pages {
		for _, line := range strings.Split(page.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			buf = append(buf, fragment{Page: page.Number, Text: line})
			tokSum += approxTokens(line)

			if tokSum >= targetTokens {
				flush()
			}
		}
	}

	// The overlap tail alone is not a chunk; only flush a tail that
	// contains fresh content beyond the carried-over fragments.
	if hasFresh(buf, out) {
		flush()
	}
	return out
}

// hasFresh reports whether buf holds anything that has not already been
// emitted as part of the previous chunk's overlap.
func hasFresh(buf []fragment, emitted []draft) bool {
	if len(buf) == 0 {
		return false
	}
	if len(emitted) == 0 {
		return true
	}
	last := emitted[len(emitted)-1].Text
	for _, f := range buf {
		if !strings.Contains(last, f.Text) {
			return true
		}
	}
	return false
}

// approxTokens is a cheap token estimator (~4 chars per token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
