package playback_test

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/audio/playback"
)

var pcm16k = audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// fakeClock is a manually advanced playback.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// fakeSink records scheduled units and lets the test fire their natural-end
// callbacks.
type fakeSink struct {
	mu      sync.Mutex
	units   []*playback.Unit
	done    map[*playback.Unit]func()
	stopped []*playback.Unit
	opened  bool
	closed  bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{done: make(map[*playback.Unit]func())}
}

func (s *fakeSink) Open(audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *fakeSink) Play(u *playback.Unit, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, u)
	s.done[u] = done
	return nil
}

func (s *fakeSink) Stop(u *playback.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, u)
	delete(s.done, u) // done must not fire after Stop
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// finishAll fires the natural-end callback of every scheduled unit.
func (s *fakeSink) finishAll() {
	s.mu.Lock()
	callbacks := make([]func(), 0, len(s.done))
	for _, fn := range s.done {
		callbacks = append(callbacks, fn)
	}
	s.done = make(map[*playback.Unit]func())
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// allSamples concatenates the samples of scheduled units in schedule order.
func (s *fakeSink) allSamples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float32
	for _, u := range s.units {
		out = append(out, u.Samples...)
	}
	return out
}

// blockingSink models a device whose submission queue is full: Play blocks
// until the sink is closed, then fails.
type blockingSink struct {
	*fakeSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		fakeSink: newFakeSink(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (s *blockingSink) Play(*playback.Unit, func()) error {
	s.entered <- struct{}{}
	<-s.release
	return errors.New("sink closed")
}

func (s *blockingSink) Close() error {
	s.once.Do(func() { close(s.release) })
	return s.fakeSink.Close()
}

// newScheduler wires a Scheduler to a fresh fake clock and a sink factory
// that hands out the sinks in order, one per speaking turn.
func newScheduler(sinks ...*fakeSink) (*playback.Scheduler, *fakeClock) {
	clock := &fakeClock{}
	i := 0
	s := playback.New(clock, func() (playback.Sink, error) {
		sink := sinks[i]
		i++
		return sink, nil
	})
	return s, clock
}

// rampPCM builds n bytes of a deterministic 16-bit LE PCM pattern.
func rampPCM(n int) []byte {
	samples := make([]byte, n+n%2)
	for i := 0; i < len(samples)/2; i++ {
		binary.LittleEndian.PutUint16(samples[i*2:], uint16(i*37))
	}
	return samples[:n]
}

func TestScheduler_ChunkBoundaryIndependence(t *testing.T) {
	// Splitting one PCM stream at arbitrary points must decode to the same
	// total sample sequence as enqueuing it whole.
	stream := rampPCM(12000)

	whole := newFakeSink()
	s1, _ := newScheduler(whole)
	s1.Begin(1)
	if err := s1.Enqueue(1, stream, pcm16k); err != nil {
		t.Fatal(err)
	}

	split := newFakeSink()
	s2, _ := newScheduler(split)
	s2.Begin(1)
	for _, n := range []int{4000, 3999, 4001} {
		if err := s2.Enqueue(1, stream[:n], pcm16k); err != nil {
			t.Fatal(err)
		}
		stream = stream[n:]
	}

	a, b := whole.allSamples(), split.allSamples()
	if len(a) != 6000 || len(b) != 6000 {
		t.Fatalf("sample counts: whole %d, split %d, want 6000", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: whole %f, split %f", i, a[i], b[i])
		}
	}
}

func TestScheduler_PendingByteCarry(t *testing.T) {
	sink := newFakeSink()
	s, _ := newScheduler(sink)
	s.Begin(1)

	s.Enqueue(1, rampPCM(4000), pcm16k)
	if got := s.PendingRemainder(); got != 0 {
		t.Errorf("after even chunk: pending %d, want 0", got)
	}
	s.Enqueue(1, rampPCM(3999), pcm16k)
	if got := s.PendingRemainder(); got != 1 {
		t.Errorf("after odd chunk: pending %d, want 1", got)
	}
	s.Enqueue(1, rampPCM(4001), pcm16k)
	if got := s.PendingRemainder(); got != 0 {
		t.Errorf("after rebalancing chunk: pending %d, want 0", got)
	}
	if got := len(sink.allSamples()); got != 6000 {
		t.Errorf("total samples: got %d, want 6000", got)
	}
}

func TestScheduler_SingleByteChunkIsNoOp(t *testing.T) {
	sink := newFakeSink()
	s, _ := newScheduler(sink)
	s.Begin(1)

	if err := s.Enqueue(1, []byte{0x7F}, pcm16k); err != nil {
		t.Fatal(err)
	}
	if s.ActiveUnits() != 0 {
		t.Error("odd single byte must not schedule a unit")
	}
	if s.PendingRemainder() != 1 {
		t.Error("odd single byte must be carried")
	}

	// The second byte completes one sample.
	if err := s.Enqueue(1, []byte{0x00}, pcm16k); err != nil {
		t.Fatal(err)
	}
	if got := len(sink.allSamples()); got != 1 {
		t.Errorf("samples: got %d, want 1", got)
	}
}

func TestScheduler_GaplessScheduling(t *testing.T) {
	sink := newFakeSink()
	s, clock := newScheduler(sink)
	s.Begin(1)

	oneSecond := rampPCM(32000) // 16000 samples at 16 kHz

	// Two chunks arriving back-to-back at t=0 play consecutively.
	s.Enqueue(1, oneSecond, pcm16k)
	s.Enqueue(1, oneSecond, pcm16k)
	if got := sink.units[0].StartAt; got != 0 {
		t.Errorf("unit 0 start: got %v, want 0", got)
	}
	if got := sink.units[1].StartAt; got != time.Second {
		t.Errorf("unit 1 start: got %v, want 1s", got)
	}

	// A chunk arriving after the queue drained starts at the clock, not at
	// the historical cursor.
	clock.advance(5 * time.Second)
	s.Enqueue(1, oneSecond, pcm16k)
	if got := sink.units[2].StartAt; got != 5*time.Second {
		t.Errorf("unit 2 start: got %v, want 5s", got)
	}
	if got := s.NextFree(); got != 6*time.Second {
		t.Errorf("nextFree: got %v, want 6s", got)
	}
}

func TestScheduler_NextFreeMonotonic(t *testing.T) {
	sink := newFakeSink()
	s, clock := newScheduler(sink)
	s.Begin(1)

	prev := s.NextFree()
	for i := range 20 {
		s.Enqueue(1, rampPCM(1000+i*13), pcm16k)
		if i%3 == 0 {
			clock.advance(40 * time.Millisecond)
		}
		if got := s.NextFree(); got < prev {
			t.Fatalf("nextFree went backwards: %v < %v", got, prev)
		} else {
			prev = got
		}
	}
}

func TestScheduler_ResetClearsEverything(t *testing.T) {
	sink := newFakeSink()
	s, clock := newScheduler(sink, newFakeSink())
	s.Begin(1)
	s.Enqueue(1, rampPCM(32001), pcm16k)
	s.Enqueue(1, rampPCM(32000), pcm16k)
	if s.ActiveUnits() != 2 {
		t.Fatalf("active: got %d, want 2", s.ActiveUnits())
	}

	s.Reset()

	if s.ActiveUnits() != 0 {
		t.Error("active set not cleared")
	}
	if s.NextFree() != 0 {
		t.Error("nextFree not cleared")
	}
	if s.PendingRemainder() != 0 {
		t.Error("pending byte not cleared")
	}
	if len(sink.stopped) != 2 {
		t.Errorf("stopped units: got %d, want 2", len(sink.stopped))
	}
	if !sink.closed {
		t.Error("device context not closed on reset")
	}

	// A new turn schedules from the current clock, not the stale cursor.
	clock.advance(3 * time.Second)
	s.Begin(2)
	s.Enqueue(2, rampPCM(32000), pcm16k)
	if got := s.NextFree(); got != 4*time.Second {
		t.Errorf("nextFree after reset: got %v, want 4s", got)
	}
}

func TestScheduler_StaleGenerationDiscarded(t *testing.T) {
	sink := newFakeSink()
	s, _ := newScheduler(sink)
	s.Begin(1)
	s.Enqueue(1, rampPCM(4000), pcm16k)

	s.Reset()
	s.Begin(2)

	// Late chunks and completion signals from turn 1 must not change
	// anything.
	if err := s.Enqueue(1, rampPCM(4001), pcm16k); err != nil {
		t.Fatal(err)
	}
	s.FinishInput(1)
	if s.ActiveUnits() != 0 {
		t.Error("stale chunk was scheduled")
	}
	if s.NextFree() != 0 {
		t.Error("stale chunk moved the cursor")
	}
	if s.PendingRemainder() != 0 {
		t.Error("stale chunk left a pending byte")
	}
}

func TestScheduler_FinishedFiresExactlyOnce(t *testing.T) {
	sink := newFakeSink()
	s, _ := newScheduler(sink)

	var mu sync.Mutex
	finished := 0
	s.OnFinished(func() {
		mu.Lock()
		finished++
		mu.Unlock()
	})

	s.Begin(1)
	s.Enqueue(1, rampPCM(4000), pcm16k)
	s.Enqueue(1, rampPCM(4000), pcm16k)

	sink.finishAll()
	mu.Lock()
	if finished != 0 {
		mu.Unlock()
		t.Fatal("finished fired before upstream completion")
	}
	mu.Unlock()

	s.Enqueue(1, rampPCM(4000), pcm16k)
	s.FinishInput(1)
	sink.finishAll()

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := finished
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("finished count: got %d, want 1", n)
		case <-time.After(time.Millisecond):
		}
	}

	// Extra completion signals stay silent.
	s.FinishInput(1)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	if finished != 1 {
		t.Errorf("finished count after repeat: got %d, want 1", finished)
	}
	mu.Unlock()
}

func TestScheduler_SinkCreatedLazilyPerTurn(t *testing.T) {
	first, second := newFakeSink(), newFakeSink()
	s, _ := newScheduler(first, second)

	s.Begin(1)
	if first.opened {
		t.Fatal("sink opened before any chunk")
	}
	s.Enqueue(1, rampPCM(4000), pcm16k)
	if !first.opened {
		t.Fatal("sink not opened on first chunk")
	}

	s.Reset()
	s.Begin(2)
	s.Enqueue(2, rampPCM(4000), pcm16k)
	if !second.opened {
		t.Fatal("fresh sink not created for the new turn")
	}
}

func TestScheduler_ResetNotBlockedByFullSinkQueue(t *testing.T) {
	// A device with a full submission queue blocks Play. Reset must still
	// return promptly: it closes the sink, which fails the blocked
	// submission.
	sink := newBlockingSink()
	clock := &fakeClock{}
	s := playback.New(clock, func() (playback.Sink, error) { return sink, nil })
	s.Begin(1)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Enqueue(1, rampPCM(4000), pcm16k) }()
	<-sink.entered // the submission is now stuck in Play

	done := make(chan struct{})
	go func() {
		s.Reset()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reset blocked behind a full device queue")
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("blocked submission must fail once the sink closes")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submission never unblocked")
	}
	if s.ActiveUnits() != 0 {
		t.Errorf("active units after reset: got %d, want 0", s.ActiveUnits())
	}
}

func TestScheduler_SinkFailureKeepsCarriedByte(t *testing.T) {
	sink := newFakeSink()
	fail := true
	clock := &fakeClock{}
	s := playback.New(clock, func() (playback.Sink, error) {
		if fail {
			return nil, errors.New("device busy")
		}
		return sink, nil
	})
	s.Begin(1)

	// An odd single byte is carried without touching the device.
	if err := s.Enqueue(1, []byte{0x7F}, pcm16k); err != nil {
		t.Fatal(err)
	}
	if got := s.PendingRemainder(); got != 1 {
		t.Fatalf("pending before failure: got %d, want 1", got)
	}

	// The failed chunk is reported to the caller, but the carried byte must
	// survive or every later sample in the turn is misaligned.
	if err := s.Enqueue(1, rampPCM(4), pcm16k); err == nil {
		t.Fatal("expected a sink creation failure")
	}
	if got := s.PendingRemainder(); got != 1 {
		t.Fatalf("pending after failure: got %d, want 1", got)
	}

	// Once the device comes back, the carried byte pairs with the next
	// chunk: 1 carried + 4 new bytes is 2 whole samples and a new carry.
	fail = false
	if err := s.Enqueue(1, rampPCM(4), pcm16k); err != nil {
		t.Fatal(err)
	}
	if got := len(sink.allSamples()); got != 2 {
		t.Errorf("samples: got %d, want 2", got)
	}
	if got := s.PendingRemainder(); got != 1 {
		t.Errorf("pending after recovery: got %d, want 1", got)
	}
}

func TestScheduler_UnitsChangedObserver(t *testing.T) {
	sink := newFakeSink()
	s, _ := newScheduler(sink)

	var mu sync.Mutex
	var counts []int
	s.OnUnitsChanged(func(active int) {
		mu.Lock()
		counts = append(counts, active)
		mu.Unlock()
	})

	s.Begin(1)
	s.Enqueue(1, rampPCM(4000), pcm16k)
	s.Enqueue(1, rampPCM(4000), pcm16k)
	sink.finishAll()
	s.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 1, 0, 0}
	if len(counts) != len(want) {
		t.Fatalf("observations: got %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("observation %d: got %d, want %d", i, counts[i], want[i])
		}
	}
}
