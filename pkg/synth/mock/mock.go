// Package mock provides a scriptable synth.Synthesizer for testing.
package mock

import (
	"context"
	"sync"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/synth"
)

// Compile-time assertion that Synthesizer satisfies synth.Synthesizer.
var _ synth.Synthesizer = (*Synthesizer)(nil)

// Synthesizer is a scriptable fake. Zero value is ready to use and streams
// nothing.
type Synthesizer struct {
	// Chunks are delivered to onChunk in order, one call each.
	Chunks [][]byte

	// Format accompanies every chunk. Defaults to 16 kHz mono 16-bit when
	// zero.
	Format audio.Format

	// Err is returned after all chunks were delivered.
	Err error

	// Block, when non-nil, is waited on between the first chunk and the
	// rest. Lets tests cancel mid-stream deterministically.
	Block chan struct{}

	mu    sync.Mutex
	calls []string
}

// Synthesize implements synth.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, onChunk func([]byte, audio.Format)) error {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	format := s.Format
	if format.SampleRate == 0 {
		format = audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	}
	for i, chunk := range s.Chunks {
		if i == 1 && s.Block != nil {
			select {
			case <-s.Block:
			case <-ctx.Done():
				return synth.ErrAborted
			}
		}
		if ctx.Err() != nil {
			return synth.ErrAborted
		}
		onChunk(chunk, format)
	}
	if ctx.Err() != nil {
		return synth.ErrAborted
	}
	return s.Err
}

// Calls returns the texts passed to Synthesize, in order.
func (s *Synthesizer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
