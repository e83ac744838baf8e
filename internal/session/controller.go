// Package session orchestrates one voice conversation: detector utterances
// in, transcribed text to the assistant, streamed reply text to synthesis,
// synthesized audio to the playback scheduler.
//
// Correctness under overlap rests on a single mechanism: the generation
// token. Every asynchronous continuation captures the token value of the
// turn that spawned it and compares it against the current value before
// mutating anything. A stale comparison means the turn was superseded and
// the result is dropped without any observable effect. There is no other
// cross-turn synchronisation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxtide/voxtide/internal/mute"
	"github.com/voxtide/voxtide/internal/observe"
	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/audio/playback"
	"github.com/voxtide/voxtide/pkg/capture"
	"github.com/voxtide/voxtide/pkg/detector"
	"github.com/voxtide/voxtide/pkg/reply"
	"github.com/voxtide/voxtide/pkg/synth"
	"github.com/voxtide/voxtide/pkg/transcribe"
)

// defaultErrorTTL is how long a transient error stays visible.
const defaultErrorTTL = 5 * time.Second

// eventBuf bounds the event feed; slow consumers lose events.
const eventBuf = 32

// Config wires the controller's collaborators. All fields except Metrics
// and ErrorTTL are required.
type Config struct {
	Detector    detector.Boundary
	Transcriber transcribe.Transcriber
	Replies     reply.Provider
	Synth       synth.Synthesizer
	Playback    *playback.Scheduler
	Mute        *mute.Store

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// ErrorTTL overrides how long transient errors stay visible.
	ErrorTTL time.Duration
}

// Controller runs the voice session. Create with New, drive with Run.
type Controller struct {
	cfg     Config
	metrics *observe.Metrics
	errTTL  time.Duration

	// token is the generation counter. It only ever increases; zero is
	// never a valid turn.
	token atomic.Uint64

	events chan Event

	mu         sync.Mutex
	turnCancel context.CancelFunc
	history    []reply.Turn
	errSeq     uint64

	turns sync.WaitGroup
}

// New validates cfg and creates a Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Detector == nil || cfg.Transcriber == nil || cfg.Replies == nil ||
		cfg.Synth == nil || cfg.Playback == nil || cfg.Mute == nil {
		return nil, errors.New("session: all collaborators are required")
	}
	c := &Controller{
		cfg:     cfg,
		metrics: cfg.Metrics,
		errTTL:  cfg.ErrorTTL,
		events:  make(chan Event, eventBuf),
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.errTTL <= 0 {
		c.errTTL = defaultErrorTTL
	}
	// The scheduler signals natural end-of-playback; that is the moment the
	// session goes back to listening.
	cfg.Playback.OnFinished(func() {
		c.publish(Event{Type: EventPhase, Phase: PhaseListening})
	})
	// Mirror the scheduler's active-unit count onto the gauge. The observer
	// runs serialised under the scheduler's lock, so prev needs no extra
	// synchronisation.
	var prev int64
	cfg.Playback.OnUnitsChanged(func(active int) {
		n := int64(active)
		c.metrics.ActivePlaybackUnits.Add(context.Background(), n-prev)
		prev = n
	})
	return c, nil
}

// Events returns the session's observable feed. The channel is never
// closed; it is buffered and lossy.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Muted reports the current persisted mute flag.
func (c *Controller) Muted() bool {
	return c.cfg.Mute.Muted()
}

// ToggleMute flips and persists the mute flag. Muting while a reply is
// playing force-stops playback immediately and cancels any in-flight
// synthesis; unmuting only affects future turns.
func (c *Controller) ToggleMute() (bool, error) {
	muted, err := c.cfg.Mute.Toggle()
	if err != nil {
		return muted, fmt.Errorf("session: toggle mute: %w", err)
	}
	if muted {
		c.interrupt()
		c.publish(Event{Type: EventPhase, Phase: PhaseListening})
	}
	slog.Info("mute toggled", "muted", muted)
	return muted, nil
}

// Run starts the detector and processes utterances until ctx is cancelled
// or a fatal error occurs. It always releases the microphone and stops
// playback before returning.
func (c *Controller) Run(ctx context.Context) error {
	detEvents, err := c.cfg.Detector.Start(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			c.publishError(&Error{Kind: ErrorPermissionDenied, Message: err.Error()})
		}
		return fmt.Errorf("session: start detector: %w", err)
	}
	defer func() {
		c.interrupt()
		if stopErr := c.cfg.Detector.Stop(); stopErr != nil {
			slog.Warn("detector stop", "err", stopErr)
		}
		c.turns.Wait()
		c.publish(Event{Type: EventPhase, Phase: PhaseIdle})
	}()

	c.publish(Event{Type: EventPhase, Phase: PhaseListening})

	for ev := range detEvents {
		switch ev.Type {
		case detector.SpeechStart:
			// Barge-in: the user speaking over a playing reply supersedes
			// that reply's turn.
			c.interrupt()
			c.publish(Event{Type: EventPhase, Phase: PhaseRecording})

		case detector.Misfire:
			c.metrics.RecordUtterance(ctx, observe.OutcomeMisfire)
			c.publish(Event{Type: EventPhase, Phase: PhaseListening})

		case detector.SpeechEnd:
			gen := c.token.Add(1)
			turnCtx, cancel := context.WithCancel(ctx)
			c.mu.Lock()
			c.turnCancel = cancel
			c.mu.Unlock()

			c.turns.Add(1)
			utt := ev.Utterance
			go func() {
				defer c.turns.Done()
				c.runTurn(turnCtx, gen, utt)
			}()

		case detector.Failed:
			if errors.Is(ev.Err, capture.ErrPermissionDenied) {
				c.publishError(&Error{Kind: ErrorPermissionDenied, Message: ev.Err.Error()})
			}
			return fmt.Errorf("session: detector failed: %w", ev.Err)
		}
	}
	return ctx.Err()
}

// runTurn drives one captured utterance through transcription, reply
// generation, and synthesized playback. Every mutation it performs is
// gated on gen still being the current token.
func (c *Controller) runTurn(ctx context.Context, gen uint64, utt audio.Utterance) {
	log := slog.With("gen", gen, "utterance", utt.Duration())
	c.publish(Event{Type: EventPhase, Phase: PhaseTranscribing})

	start := time.Now()
	res, err := c.cfg.Transcriber.Transcribe(ctx, audio.EncodeWAV(utt.Samples, utt.SampleRate))
	if !c.current(gen) {
		c.metrics.RecordStaleDrop(ctx, "transcription")
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.metrics.RecordProviderError(ctx, "transcribe", "request")
		log.Warn("transcription failed", "err", err)
		kind := ErrorTranscriptionFailed
		if errors.Is(err, transcribe.ErrAuthExpired) {
			kind = ErrorAuthRequired
		}
		c.publishError(&Error{Kind: kind, Message: err.Error()})
		c.publish(Event{Type: EventPhase, Phase: PhaseListening})
		return
	}
	observe.RecordStage(ctx, c.metrics.TranscriptionDuration, start)

	if !res.Understood() {
		c.metrics.RecordUtterance(ctx, observe.OutcomeNotUnderstood)
		log.Debug("utterance not understood")
		c.publish(Event{Type: EventPhase, Phase: PhaseListening})
		return
	}
	c.metrics.RecordUtterance(ctx, observe.OutcomeOK)
	c.publish(Event{Type: EventUserText, Text: res.Text})

	c.mu.Lock()
	c.history = append(c.history, reply.Turn{Role: "user", Text: res.Text})
	history := append([]reply.Turn(nil), c.history...)
	c.mu.Unlock()

	replyStart := time.Now()
	chunks, err := c.cfg.Replies.Stream(ctx, history)
	if err != nil {
		if !c.current(gen) || errors.Is(err, context.Canceled) {
			return
		}
		c.metrics.RecordProviderError(ctx, "reply", "start")
		log.Warn("reply stream failed to start", "err", err)
		c.publishError(&Error{Kind: ErrorReplyFailed, Message: err.Error()})
		c.publish(Event{Type: EventPhase, Phase: PhaseListening})
		return
	}

	sentences := make(chan string, 8)
	type replyResult struct {
		full string
		err  error
	}
	resultCh := make(chan replyResult, 1)
	go func() {
		full, ferr := forwardSentences(ctx, chunks, sentences)
		resultCh <- replyResult{full: full, err: ferr}
	}()

	spoke := c.speak(ctx, gen, sentences)

	result := <-resultCh
	if !c.current(gen) {
		c.metrics.RecordStaleDrop(ctx, "reply")
		return
	}
	observe.RecordStage(ctx, c.metrics.ReplyDuration, replyStart)
	if result.err != nil && !errors.Is(result.err, context.Canceled) {
		c.metrics.RecordProviderError(ctx, "reply", "stream")
		log.Warn("reply stream failed", "err", result.err)
		if result.full == "" {
			c.publishError(&Error{Kind: ErrorReplyFailed, Message: result.err.Error()})
		}
	}
	if result.full != "" {
		c.mu.Lock()
		c.history = append(c.history, reply.Turn{Role: "assistant", Text: result.full})
		c.mu.Unlock()
	}
	c.cfg.Playback.FinishInput(gen)

	// A turn with no playback (muted, degraded from the start, or an empty
	// reply) gets no finished callback, so return to listening here.
	if !spoke {
		c.publish(Event{Type: EventPhase, Phase: PhaseListening})
	}
}

// speak forwards reply sentences to the synthesizer and enqueues the audio,
// reporting whether any playback was started. While muted, sentences are
// still consumed and published as text but no synthesis request leaves the
// process. A synthesis failure degrades the turn to text-only instead of
// ending it.
func (c *Controller) speak(ctx context.Context, gen uint64, sentences <-chan string) (spoke bool) {
	degraded := false
	var synthStart time.Time

	for sentence := range sentences {
		if !c.current(gen) {
			return spoke
		}
		c.publish(Event{Type: EventAssistantText, Text: sentence})

		if c.Muted() || degraded {
			continue
		}
		if !spoke {
			spoke = true
			synthStart = time.Now()
			c.cfg.Playback.Begin(gen)
			c.publish(Event{Type: EventPhase, Phase: PhaseSpeaking})
		}

		err := c.cfg.Synth.Synthesize(ctx, sentence, func(pcm []byte, format audio.Format) {
			if enqErr := c.cfg.Playback.Enqueue(gen, pcm, format); enqErr != nil {
				slog.Warn("enqueue chunk", "gen", gen, "err", enqErr)
			}
		})
		switch {
		case err == nil:
		case errors.Is(err, synth.ErrAborted):
			// Intentional cancellation is a no-op by contract.
			return spoke
		default:
			c.metrics.RecordProviderError(ctx, "synth", "stream")
			slog.Warn("synthesis failed, continuing text-only", "gen", gen, "err", err)
			c.publishError(&Error{Kind: ErrorSynthesisFailed, Message: err.Error()})
			degraded = true
		}
	}
	if spoke && c.current(gen) {
		observe.RecordStage(ctx, c.metrics.SynthesisDuration, synthStart)
	}
	return spoke
}

// interrupt supersedes the active turn: it bumps the generation token,
// cancels the turn's context, and force-stops playback. Anything still in
// flight for the old token completes harmlessly and is discarded on
// arrival.
func (c *Controller) interrupt() {
	c.token.Add(1)
	c.mu.Lock()
	cancel := c.turnCancel
	c.turnCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.cfg.Playback.Reset()
}

// current reports whether gen is still the live generation.
func (c *Controller) current(gen uint64) bool {
	return c.token.Load() == gen
}

// publish sends ev without blocking; the feed is lossy by design.
func (c *Controller) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
		slog.Debug("event feed full, dropping", "type", ev.Type)
	}
}

// publishError emits an error event. Transient errors are followed by an
// EventErrorCleared after the TTL unless a newer error replaced them;
// persistent errors stay until resolved externally.
func (c *Controller) publishError(e *Error) {
	c.mu.Lock()
	c.errSeq++
	seq := c.errSeq
	c.mu.Unlock()

	c.publish(Event{Type: EventError, Err: e})
	if e.Persistent() {
		return
	}
	time.AfterFunc(c.errTTL, func() {
		c.mu.Lock()
		stale := seq != c.errSeq
		c.mu.Unlock()
		if !stale {
			c.publish(Event{Type: EventErrorCleared})
		}
	})
}
