package resilience

import (
	"context"
	"errors"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/synth"
)

// FallbackSynthesizer implements [synth.Synthesizer] with automatic
// failover across multiple synthesis services, each behind its own circuit
// breaker.
//
// Two rules restrict failover:
//
//   - synth.ErrAborted is intentional cancellation. It is returned as-is,
//     never counts against a breaker, and never triggers a fallback.
//   - Once any audio chunk has reached the caller, failover stops: a retry
//     from a different service would replay the sentence and duplicate
//     audio in the playback schedule.
type FallbackSynthesizer struct {
	group *FallbackGroup[synth.Synthesizer]
}

// Compile-time interface assertion.
var _ synth.Synthesizer = (*FallbackSynthesizer)(nil)

// NewFallbackSynthesizer creates a [FallbackSynthesizer] with primary as
// the preferred service.
func NewFallbackSynthesizer(primary synth.Synthesizer, primaryName string, cfg FallbackConfig) *FallbackSynthesizer {
	return &FallbackSynthesizer{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis service.
func (f *FallbackSynthesizer) AddFallback(name string, s synth.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Synthesize implements synth.Synthesizer.
func (f *FallbackSynthesizer) Synthesize(ctx context.Context, text string, onChunk func(pcm []byte, format audio.Format)) error {
	if ctx.Err() != nil {
		return synth.ErrAborted
	}
	var (
		settled  bool
		finalErr error
	)
	err := f.group.Execute(func(s synth.Synthesizer) error {
		if settled || ctx.Err() != nil {
			return nil
		}
		delivered := false
		serr := s.Synthesize(ctx, text, func(pcm []byte, format audio.Format) {
			delivered = true
			onChunk(pcm, format)
		})
		switch {
		case serr == nil:
			settled = true
			return nil
		case errors.Is(serr, synth.ErrAborted):
			// Not a provider failure; stop without touching the breaker.
			settled = true
			finalErr = synth.ErrAborted
			return nil
		case delivered:
			// Mid-stream failure after audio reached the caller. Count it
			// against the breaker but do not fail over.
			settled = true
			finalErr = serr
			return serr
		default:
			return serr
		}
	})
	if settled {
		return finalErr
	}
	return err
}
