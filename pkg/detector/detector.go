// Package detector turns a continuous microphone stream into discrete
// utterances.
//
// The central type is [Detector], which scores each captured frame with a
// [vad.Engine] session and drives an explicit Idle → Listening → Capturing
// state machine. Boundary decisions are surfaced as typed [Event] values on
// a per-run channel rather than scattered callbacks, so the state
// transitions stay auditable.
//
// [PushToTalk] is the degenerate variant: the user's explicit start/stop
// actions bound the utterance and no model is involved. Both types satisfy
// [Boundary].
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/capture"
	"github.com/voxtide/voxtide/pkg/vad"
)

// Defaults for the product-tuning constants. They are configuration, not
// structural invariants.
const (
	// DefaultSpeechThreshold is the activity score at or above which a frame
	// counts toward opening an utterance.
	DefaultSpeechThreshold = 0.5

	// DefaultStartFrames is the number of consecutive frames at or above the
	// threshold required before SpeechStart fires.
	DefaultStartFrames = 2

	// DefaultTrailingSilence is how long activity must stay below the
	// threshold before the open utterance is closed.
	DefaultTrailingSilence = 800 * time.Millisecond

	// DefaultMinUtterance is the minimum utterance duration; anything
	// shorter is discarded as a misfire.
	DefaultMinUtterance = 250 * time.Millisecond

	// eventBuf is the buffer depth of the per-run event channel.
	eventBuf = 16
)

// Config holds the boundary-detection parameters. Zero fields take the
// package defaults.
type Config struct {
	// SampleRate in Hz of the capture stream. Required.
	SampleRate int

	// FrameSize is the number of samples per capture frame. Required; must
	// match what the VAD model expects (512 at 16 kHz for Silero).
	FrameSize int

	// SpeechThreshold is the score at or above which a frame is speech.
	SpeechThreshold float64

	// StartFrames is the sustain window: consecutive speech frames needed
	// to open an utterance.
	StartFrames int

	// TrailingSilence is the below-threshold duration that closes an open
	// utterance.
	TrailingSilence time.Duration

	// MinUtterance is the minimum duration for a valid utterance.
	MinUtterance time.Duration
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.StartFrames <= 0 {
		c.StartFrames = DefaultStartFrames
	}
	if c.TrailingSilence <= 0 {
		c.TrailingSilence = DefaultTrailingSilence
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	return c
}

// Compile-time assertion that Detector satisfies Boundary.
var _ Boundary = (*Detector)(nil)

// Detector is the VAD-driven speech boundary detector.
//
// The VAD session is created lazily on the first Start — the model is only
// loaded if voice input is actually used. Only one capture run may be active
// at a time; Start while running returns an error.
type Detector struct {
	source capture.Source
	engine vad.Engine
	cfg    Config

	mu      sync.Mutex
	state   State
	sess    vad.Session // lazily created, reused across runs
	cancel  context.CancelFunc
	runDone chan struct{}
}

// New creates a Detector reading frames from source and scoring them with
// sessions from engine. Returns an error if the config is incomplete.
func New(source capture.Source, engine vad.Engine, cfg Config) (*Detector, error) {
	if source == nil || engine == nil {
		return nil, errors.New("detector: source and engine must not be nil")
	}
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("detector: SampleRate and FrameSize are required, got %d/%d", cfg.SampleRate, cfg.FrameSize)
	}
	return &Detector{
		source: source,
		engine: engine,
		cfg:    cfg.withDefaults(),
	}, nil
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start acquires the microphone and begins continuous scoring. The returned
// channel delivers boundary events for this run and is closed when the run
// ends. Microphone permission denial and model-load failures are returned
// directly — both are fatal, not retryable.
func (d *Detector) Start(ctx context.Context) (<-chan Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Idle {
		return nil, fmt.Errorf("detector: already started (state %s)", d.state)
	}

	// Lazy model init: deferred to the first Start so the model file is
	// only fetched when voice input is used.
	if d.sess == nil {
		sess, err := d.engine.NewSession(vad.Config{
			SampleRate: d.cfg.SampleRate,
			FrameSize:  d.cfg.FrameSize,
			Threshold:  d.cfg.SpeechThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("detector: init VAD session: %w", err)
		}
		d.sess = sess
	}
	d.sess.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	frames, err := d.source.Start(runCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan Event, eventBuf)
	done := make(chan struct{})
	d.cancel = cancel
	d.runDone = done
	d.state = Listening

	go d.run(runCtx, frames, events, done)
	return events, nil
}

// Stop halts capture, releases the microphone handle, and waits for the run
// goroutine to drain. The event channel from the matching Start is closed.
func (d *Detector) Stop() error {
	d.mu.Lock()
	if d.state == Idle {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	done := d.runDone
	d.mu.Unlock()

	cancel()
	err := d.source.Stop()
	if done != nil {
		<-done
	}
	return err
}

// Close releases the VAD session. The detector must be stopped first.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Idle {
		return errors.New("detector: stop before close")
	}
	if d.sess == nil {
		return nil
	}
	err := d.sess.Close()
	d.sess = nil
	return err
}

// run is the per-capture-run goroutine: it scores frames and drives the
// state machine until the frame stream closes.
func (d *Detector) run(ctx context.Context, frames <-chan audio.Frame, events chan<- Event, done chan struct{}) {
	defer close(done)
	defer close(events)
	defer func() {
		d.mu.Lock()
		d.state = Idle
		d.cancel = nil
		d.runDone = nil
		d.mu.Unlock()
	}()

	var (
		sustain  []audio.Frame // below-StartFrames run of speech frames
		captured []float32     // open utterance samples
		silence  time.Duration // accumulated trailing silence while capturing
	)

	frameDur := time.Duration(d.cfg.FrameSize) * time.Second / time.Duration(d.cfg.SampleRate)

	for frame := range frames {
		score, err := d.score(frame.Samples)
		if err != nil {
			d.emit(ctx, events, Event{Type: Failed, Err: err})
			return
		}

		speech := score >= d.cfg.SpeechThreshold

		switch d.State() {
		case Listening:
			if !speech {
				sustain = sustain[:0]
				continue
			}
			sustain = append(sustain, frame)
			if len(sustain) < d.cfg.StartFrames {
				continue
			}
			// Sustain window satisfied: the utterance opens with the frames
			// that formed the window so no leading speech is lost.
			captured = captured[:0]
			for _, f := range sustain {
				captured = append(captured, f.Samples...)
			}
			sustain = sustain[:0]
			silence = 0
			d.setState(Capturing)
			d.emit(ctx, events, Event{Type: SpeechStart})

		case Capturing:
			captured = append(captured, frame.Samples...)
			if speech {
				silence = 0
				continue
			}
			silence += frameDur
			if silence < d.cfg.TrailingSilence {
				continue
			}

			utt := audio.Utterance{
				Samples:    append([]float32(nil), captured...),
				SampleRate: d.cfg.SampleRate,
			}
			// The buffer always ends with the full trailing-silence window;
			// only the speech portion counts toward the minimum, otherwise
			// a TrailingSilence longer than MinUtterance would make every
			// blip pass.
			speechDur := utt.Duration() - silence
			captured = captured[:0]
			silence = 0
			d.setState(Listening)

			if speechDur < d.cfg.MinUtterance {
				slog.Debug("detector: speech portion below minimum duration, discarding",
					"speech", speechDur, "total", utt.Duration(), "min", d.cfg.MinUtterance)
				d.emit(ctx, events, Event{Type: Misfire})
				continue
			}
			d.emit(ctx, events, Event{Type: SpeechEnd, Utterance: utt})
		}
	}
}

// score runs one frame through the VAD session.
func (d *Detector) score(samples []float32) (float64, error) {
	d.mu.Lock()
	sess := d.sess
	d.mu.Unlock()
	if sess == nil {
		return 0, errors.New("detector: VAD session closed mid-run")
	}
	return sess.Score(samples)
}

func (d *Detector) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// emit delivers ev unless the run context is already cancelled.
func (d *Detector) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
