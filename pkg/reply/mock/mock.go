// Package mock provides a scriptable reply.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/voxtide/voxtide/pkg/reply"
)

// Compile-time assertion that Provider satisfies reply.Provider.
var _ reply.Provider = (*Provider)(nil)

// Provider is a scriptable fake. Zero value streams nothing.
type Provider struct {
	// Chunks are emitted in order, then the channel closes.
	Chunks []string

	// Err, when non-nil, is emitted as the terminal chunk after Chunks.
	Err error

	// StartErr, when non-nil, is returned by Stream before any channel is
	// created.
	StartErr error

	mu    sync.Mutex
	calls [][]reply.Turn
}

// Stream implements reply.Provider.
func (p *Provider) Stream(ctx context.Context, history []reply.Turn) (<-chan reply.Chunk, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]reply.Turn(nil), history...))
	p.mu.Unlock()

	if p.StartErr != nil {
		return nil, p.StartErr
	}

	ch := make(chan reply.Chunk, len(p.Chunks)+1)
	go func() {
		defer close(ch)
		for _, text := range p.Chunks {
			select {
			case ch <- reply.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if p.Err != nil && ctx.Err() == nil {
			ch <- reply.Chunk{Err: p.Err}
		}
	}()
	return ch, nil
}

// Calls returns every history passed to Stream.
func (p *Provider) Calls() [][]reply.Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]reply.Turn(nil), p.calls...)
}
