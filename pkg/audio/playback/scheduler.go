package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxtide/voxtide/pkg/audio"
)

// Scheduler turns an incremental byte stream into gapless scheduled
// playback. All methods are safe for concurrent use.
//
// A speaking turn is bracketed by [Scheduler.Begin] (which arms the
// scheduler with the turn's generation token) and either natural completion
// ([Scheduler.FinishInput] plus the last unit ending) or [Scheduler.Reset].
// Enqueue calls carrying any other generation are discarded silently — that
// is the sole mechanism protecting against chunks that arrive after their
// turn was superseded.
type Scheduler struct {
	clock   Clock
	newSink func() (Sink, error)

	mu            sync.Mutex
	sink          Sink // nil until first use in a turn
	gen           uint64
	nextFree      time.Duration
	pending       []byte // 0 or 1 carried byte
	active        map[*Unit]struct{}
	inputDone     bool
	finishedFired bool
	onFinished    func()
	onUnits       func(active int)
}

// New creates a Scheduler. newSink is invoked lazily, at most once per
// speaking turn, to create the output device.
func New(clock Clock, newSink func() (Sink, error)) *Scheduler {
	return &Scheduler{
		clock:   clock,
		newSink: newSink,
		active:  make(map[*Unit]struct{}),
	}
}

// OnFinished registers fn to be called exactly once per speaking turn, when
// the upstream signalled completion and the last active unit has ended.
// It is never called for turns that end in Reset. fn runs on its own
// goroutine.
func (s *Scheduler) OnFinished(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinished = fn
}

// OnUnitsChanged registers fn to observe the number of scheduled-but-
// unfinished units after every change. fn is called synchronously with the
// scheduler's internal state locked, so it must be fast and must not call
// back into the Scheduler.
func (s *Scheduler) OnUnitsChanged(fn func(active int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUnits = fn
}

// notifyUnitsLocked reports the current active-unit count to the observer.
// Must be called with s.mu held.
func (s *Scheduler) notifyUnitsLocked() {
	if s.onUnits != nil {
		s.onUnits(len(s.active))
	}
}

// Begin arms the scheduler for a new speaking turn identified by gen.
// gen must be non-zero; zero is reserved for "no active turn".
func (s *Scheduler) Begin(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = gen
	s.nextFree = 0
	s.pending = nil
	s.inputDone = false
	s.finishedFired = false
}

// Enqueue decodes raw as little-endian 16-bit PCM in the given format and
// schedules it for gapless playback.
//
// Chunks need not end on a sample boundary: a trailing odd byte is carried
// into the next call. A chunk that yields zero usable bytes is a no-op.
// Chunks whose generation is not the current turn's are discarded without
// any state change.
func (s *Scheduler) Enqueue(gen uint64, raw []byte, format audio.Format) error {
	s.mu.Lock()

	if gen == 0 || gen != s.gen {
		s.mu.Unlock()
		slog.Debug("playback: discarding stale chunk", "gen", gen, "current", s.gen)
		return nil
	}

	// Carry-over handling: prepend the pending byte, then split off a new
	// trailing byte if the combined length is odd. prevPending is kept so a
	// failed sink acquisition does not lose the carried byte and shift
	// sample alignment for the rest of the turn.
	prevPending := s.pending
	combined := raw
	if len(s.pending) > 0 {
		combined = make([]byte, 0, len(s.pending)+len(raw))
		combined = append(combined, s.pending...)
		combined = append(combined, raw...)
		s.pending = nil
	}
	if len(combined)%2 != 0 {
		s.pending = []byte{combined[len(combined)-1]}
		combined = combined[:len(combined)-1]
	}
	if len(combined) == 0 {
		s.mu.Unlock()
		return nil
	}

	if s.sink == nil {
		sink, err := s.newSink()
		if err != nil {
			s.pending = prevPending
			s.mu.Unlock()
			return fmt.Errorf("playback: create sink: %w", err)
		}
		if err := sink.Open(format); err != nil {
			sink.Close()
			s.pending = prevPending
			s.mu.Unlock()
			return fmt.Errorf("playback: open sink: %w", err)
		}
		s.sink = sink
	}

	samples := audio.PCM16ToFloat32(combined)
	length := time.Duration(len(samples)) * time.Second / time.Duration(format.SampleRate)

	// Gapless, forward-only: never before now, never before the previous
	// unit's end.
	start := s.clock.Now()
	if s.nextFree > start {
		start = s.nextFree
	}

	unit := &Unit{
		Samples: samples,
		Format:  format,
		StartAt: start,
		Length:  length,
		gen:     gen,
	}
	s.nextFree = start + length
	s.active[unit] = struct{}{}
	s.notifyUnitsLocked()
	sink := s.sink
	s.mu.Unlock()

	// Play may block while the sink's queue is full. Called unlocked so a
	// concurrent Reset (the mute force-stop) is never held up; Reset closes
	// the sink, which unblocks Play with an error.
	if err := sink.Play(unit, func() { s.unitDone(unit) }); err != nil {
		s.mu.Lock()
		delete(s.active, unit)
		s.notifyUnitsLocked()
		s.mu.Unlock()
		return fmt.Errorf("playback: schedule unit: %w", err)
	}
	return nil
}

// FinishInput signals that the upstream stream for the given turn is
// complete. Once every active unit has ended, the finished callback fires.
// Stale generations are ignored.
func (s *Scheduler) FinishInput(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == 0 || gen != s.gen {
		return
	}
	s.inputDone = true
	s.maybeFinishLocked()
}

// Reset stops and disconnects every active unit immediately (even
// mid-sample), clears the active set, the free-time cursor, and the pending
// byte, and closes the output device. The device is recreated lazily on the
// next turn's first Enqueue. No finished event fires for a reset turn.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for u := range s.active {
		s.sink.Stop(u)
		delete(s.active, u)
	}
	s.notifyUnitsLocked()
	s.gen = 0
	s.nextFree = 0
	s.pending = nil
	s.inputDone = false
	s.finishedFired = false

	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			slog.Warn("playback: sink close", "err", err)
		}
		s.sink = nil
	}
}

// ActiveUnits reports the number of units currently scheduled or playing.
func (s *Scheduler) ActiveUnits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextFree returns the current free-time cursor: the clock time at which
// the next enqueued unit would start if it arrived immediately. Zero after
// Begin or Reset.
func (s *Scheduler) NextFree() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFree
}

// PendingRemainder reports the number of carried bytes (0 or 1) awaiting
// the next chunk.
func (s *Scheduler) PendingRemainder() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// unitDone is the natural-end callback for one unit. Ends belonging to a
// superseded turn are ignored — Reset already dropped those units.
func (s *Scheduler) unitDone(u *Unit) {
	s.mu.Lock()
	if u.gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.active, u)
	s.notifyUnitsLocked()
	s.maybeFinishLocked()
	s.mu.Unlock()
}

// maybeFinishLocked fires the finished callback exactly once when the turn
// is fully drained. Must be called with s.mu held.
func (s *Scheduler) maybeFinishLocked() {
	if !s.inputDone || s.finishedFired || len(s.active) > 0 {
		return
	}
	s.finishedFired = true
	if s.onFinished != nil {
		fn := s.onFinished
		go fn()
	}
}
