package session

import (
	"context"
	"strings"

	"github.com/voxtide/voxtide/pkg/reply"
)

// forwardSentences reads reply chunks from ch, accumulates them into
// complete sentences, and writes each sentence to out so synthesis can start
// before the reply finishes. Any text remaining when the stream ends is
// flushed as a final fragment. out is closed on return.
//
// Returns the full accumulated reply text and the stream's terminal error,
// if any.
func forwardSentences(ctx context.Context, ch <-chan reply.Chunk, out chan<- string) (string, error) {
	defer close(out)

	var full strings.Builder
	var buf strings.Builder

	flush := func(s string) bool {
		select {
		case out <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				if buf.Len() > 0 {
					flush(buf.String())
				}
				return full.String(), nil
			}
			if chunk.Err != nil {
				// Deliver what already arrived; the caller decides how much
				// of a partial reply is worth keeping.
				if buf.Len() > 0 {
					flush(buf.String())
				}
				return full.String(), chunk.Err
			}
			if chunk.Text == "" {
				continue
			}
			full.WriteString(chunk.Text)
			buf.WriteString(chunk.Text)

			// Flush complete sentences eagerly for lower synthesis latency.
			for {
				idx := firstSentenceBoundary(buf.String())
				if idx < 0 {
					break
				}
				sentence := buf.String()[:idx+1]
				rest := strings.TrimLeft(buf.String()[idx+1:], " \t\n\r")
				buf.Reset()
				buf.WriteString(rest)
				if !flush(sentence) {
					return full.String(), ctx.Err()
				}
			}
		}
	}
}

// firstSentenceBoundary returns the index of the first '.', '!', or '?'
// that is immediately followed by a whitespace character. Returns -1 when
// no boundary exists in s. The whitespace requirement keeps decimals,
// abbreviations, and URLs from splitting mid-sentence.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
