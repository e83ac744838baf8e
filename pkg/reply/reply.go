// Package reply defines the interface to the assistant backend that turns a
// transcribed utterance into streamed response text.
//
// Implementations must be safe for concurrent use and must close the
// returned channel when the stream ends or the context is cancelled.
package reply

import "context"

// Turn is one entry of the conversation history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Text is the turn's content.
	Text string
}

// Chunk is one incremental fragment of the assistant's reply.
type Chunk struct {
	// Text is the fragment, possibly empty on the terminal chunk.
	Text string

	// Err is non-nil on the terminal chunk of a failed stream. No further
	// chunks follow a chunk with Err set.
	Err error
}

// Provider streams assistant replies.
type Provider interface {
	// Stream sends the conversation (latest user turn last) and returns a
	// channel of reply fragments in generation order. The channel is closed
	// when the reply is complete, on error (after one Chunk carrying Err),
	// or when ctx is cancelled. A non-nil error return means the stream
	// never started.
	Stream(ctx context.Context, history []Turn) (<-chan Chunk, error)
}
