package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/capture"
)

// Compile-time assertion that PushToTalk satisfies Boundary.
var _ Boundary = (*PushToTalk)(nil)

// PushToTalk bounds utterances on explicit user action instead of inference.
// StartRecording acquires the microphone and accumulates samples until
// StopRecording (which emits SpeechEnd, or Misfire when too short) or
// CancelRecording (which discards the buffer silently).
//
// The event contract matches [Detector], so the session controller does not
// care which variant is active.
type PushToTalk struct {
	source capture.Source
	min    time.Duration

	mu       sync.Mutex
	state    State
	ctx      context.Context
	events   chan Event
	captured []float32
	rate     int
	recDone  chan struct{}
	recStop  context.CancelFunc
}

// NewPushToTalk creates a push-to-talk detector. minUtterance ≤ 0 takes
// [DefaultMinUtterance].
func NewPushToTalk(source capture.Source, minUtterance time.Duration) (*PushToTalk, error) {
	if source == nil {
		return nil, errors.New("detector: source must not be nil")
	}
	if minUtterance <= 0 {
		minUtterance = DefaultMinUtterance
	}
	return &PushToTalk{source: source, min: minUtterance}, nil
}

// State returns the current lifecycle state.
func (p *PushToTalk) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start arms the detector and returns its event stream. No device is
// acquired until StartRecording.
func (p *PushToTalk) Start(ctx context.Context) (<-chan Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Idle {
		return nil, fmt.Errorf("detector: already started (state %s)", p.state)
	}
	p.ctx = ctx
	p.events = make(chan Event, eventBuf)
	p.state = Listening

	// Close the event stream when the surrounding context ends.
	go func(events chan Event) {
		<-ctx.Done()
		p.mu.Lock()
		if p.events == events {
			p.state = Idle
			p.events = nil
			close(events)
		}
		p.mu.Unlock()
	}(p.events)

	return p.events, nil
}

// Stop cancels any in-progress recording, releases the microphone, and
// closes the event stream.
func (p *PushToTalk) Stop() error {
	if err := p.CancelRecording(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle {
		return nil
	}
	p.state = Idle
	if p.events != nil {
		close(p.events)
		p.events = nil
	}
	return nil
}

// StartRecording acquires the microphone and opens an utterance. Emits
// SpeechStart. Returns an error if a recording is already in flight or the
// device cannot be acquired.
func (p *PushToTalk) StartRecording() error {
	p.mu.Lock()
	if p.state != Listening {
		p.mu.Unlock()
		return fmt.Errorf("detector: cannot record in state %s", p.state)
	}
	ctx := p.ctx
	events := p.events
	p.mu.Unlock()

	recCtx, cancel := context.WithCancel(ctx)
	frames, err := p.source.Start(recCtx)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})

	p.mu.Lock()
	p.state = Capturing
	p.captured = p.captured[:0]
	p.rate = 0
	p.recDone = done
	p.recStop = cancel
	p.mu.Unlock()

	select {
	case events <- Event{Type: SpeechStart}:
	case <-ctx.Done():
	}

	go func() {
		defer close(done)
		for frame := range frames {
			p.mu.Lock()
			p.captured = append(p.captured, frame.Samples...)
			p.rate = frame.SampleRate
			p.mu.Unlock()
		}
	}()
	return nil
}

// StopRecording releases the microphone and delivers the accumulated
// utterance: SpeechEnd when it meets the minimum duration, Misfire
// otherwise.
func (p *PushToTalk) StopRecording() error {
	events, utt, err := p.finishRecording()
	if err != nil || events == nil {
		return err
	}

	ev := Event{Type: SpeechEnd, Utterance: utt}
	if utt.Duration() < p.min {
		ev = Event{Type: Misfire}
	}
	select {
	case events <- ev:
	default:
		// Event buffer full; the consumer is gone. Nothing to do.
	}
	return nil
}

// CancelRecording releases the microphone and discards the buffer without
// emitting any event. A no-op when nothing is recording.
func (p *PushToTalk) CancelRecording() error {
	_, _, err := p.finishRecording()
	return err
}

// finishRecording stops the capture stream and returns the event channel
// plus the accumulated utterance. events is nil when no recording was in
// flight.
func (p *PushToTalk) finishRecording() (chan Event, audio.Utterance, error) {
	p.mu.Lock()
	if p.state != Capturing {
		p.mu.Unlock()
		return nil, audio.Utterance{}, nil
	}
	stop := p.recStop
	done := p.recDone
	p.mu.Unlock()

	stop()
	err := p.source.Stop()
	<-done

	p.mu.Lock()
	utt := audio.Utterance{
		Samples:    append([]float32(nil), p.captured...),
		SampleRate: p.rate,
	}
	p.captured = p.captured[:0]
	p.recStop = nil
	p.recDone = nil
	p.state = Listening
	events := p.events
	p.mu.Unlock()

	return events, utt, err
}
