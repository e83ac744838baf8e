package resilience

import (
	"context"
	"errors"

	"github.com/voxtide/voxtide/pkg/transcribe"
)

// FallbackTranscriber implements [transcribe.Transcriber] with automatic
// failover across multiple transcription endpoints, each behind its own
// circuit breaker.
//
// Failover honours the transcribe error taxonomy: only retry-eligible
// failures (ErrServiceUnavailable, ErrNetwork) move on to the next entry.
// ErrAuthExpired and ErrBadAudio describe the request, not the endpoint's
// health, so they are returned as-is without counting against any breaker.
type FallbackTranscriber struct {
	group *FallbackGroup[transcribe.Transcriber]
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*FallbackTranscriber)(nil)

// NewFallbackTranscriber creates a [FallbackTranscriber] with primary as
// the preferred endpoint.
func NewFallbackTranscriber(primary transcribe.Transcriber, primaryName string, cfg FallbackConfig) *FallbackTranscriber {
	return &FallbackTranscriber{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription endpoint.
func (f *FallbackTranscriber) AddFallback(name string, t transcribe.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe implements transcribe.Transcriber.
func (f *FallbackTranscriber) Transcribe(ctx context.Context, container []byte) (transcribe.Result, error) {
	var (
		settled  bool
		finalRes transcribe.Result
		finalErr error
	)
	res, err := ExecuteWithResult(f.group, func(t transcribe.Transcriber) (transcribe.Result, error) {
		if settled {
			return finalRes, nil
		}
		r, terr := t.Transcribe(ctx, container)
		if terr == nil {
			return r, nil
		}
		if !retryEligible(terr) {
			// Terminal for the whole call; report success to the breaker so
			// a bad credential cannot trip a healthy endpoint open.
			settled = true
			finalErr = terr
			return transcribe.Result{}, nil
		}
		return transcribe.Result{}, terr
	})
	if settled {
		return finalRes, finalErr
	}
	return res, err
}

// retryEligible reports whether err may be answered by a different
// endpoint.
func retryEligible(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, transcribe.ErrServiceUnavailable) || errors.Is(err, transcribe.ErrNetwork)
}
