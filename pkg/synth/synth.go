// Package synth streams synthesized speech for one reply turn.
//
// The contract is incremental: audio arrives as chunks while the remote
// service is still producing, so playback can begin well before the full
// reply is rendered. Cancellation is cooperative — callers cancel the
// context, the stream returns [ErrAborted], and that outcome is a no-op
// by contract, never a user-visible error.
package synth

import (
	"context"
	"errors"

	"github.com/voxtide/voxtide/pkg/audio"
)

// ErrAborted reports that a synthesis call was cancelled on purpose.
// Callers must filter it with errors.Is before any error surfaces anywhere.
var ErrAborted = errors.New("synth: aborted")

// Synthesizer streams synthesized audio for a single piece of text.
type Synthesizer interface {
	// Synthesize sanitizes text, requests synthesis, and invokes onChunk
	// for every audio chunk as it arrives. The format is fixed for the
	// whole call and repeated on every invocation for the caller's
	// convenience. Chunks are delivered in network order and onChunk is
	// never called concurrently with itself.
	//
	// Text that is empty after sanitization short-circuits: no network
	// call is made and Synthesize returns nil.
	//
	// When ctx is cancelled, no further onChunk calls occur and the
	// return value is ErrAborted.
	Synthesize(ctx context.Context, text string, onChunk func(pcm []byte, format audio.Format)) error
}
