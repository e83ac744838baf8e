package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/audio/playback"
)

// writeBlock is the number of samples written to the device per call.
const writeBlock = 1024

// Compile-time assertion that Sink satisfies playback.Sink.
var _ playback.Sink = (*Sink)(nil)

// Sink renders scheduled playback units on the default output device. One
// Sink serves one speaking turn; the scheduler closes it on Reset and the
// factory creates a fresh one for the next turn.
type Sink struct {
	clock playback.Clock

	mu      sync.Mutex
	stream  *pa.Stream
	buf     []float32
	queue   chan sinkJob
	cancels map[*playback.Unit]chan struct{}
	closed  chan struct{}
	writer  chan struct{}
}

type sinkJob struct {
	unit *playback.Unit
	done func()
}

// NewSinkFactory returns the lazy sink constructor the playback scheduler
// expects: each call yields an unopened Sink sharing the scheduler's clock.
func NewSinkFactory(clock playback.Clock) func() (playback.Sink, error) {
	return func() (playback.Sink, error) {
		return &Sink{clock: clock}, nil
	}
}

// Open implements playback.Sink: acquires the default output device at the
// stream's sample rate and starts the writer goroutine.
func (s *Sink) Open(format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return errors.New("portaudio: sink already open")
	}
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}

	// The stream holds a pointer to s.buf; render reslices it so the final
	// partial block of a unit writes exactly its remainder.
	s.buf = make([]float32, writeBlock)
	stream, err := pa.OpenDefaultStream(0, 1, float64(format.SampleRate), writeBlock, &s.buf)
	if err != nil {
		s.buf = nil
		pa.Terminate()
		return fmt.Errorf("portaudio: open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		s.buf = nil
		pa.Terminate()
		return fmt.Errorf("portaudio: start output: %w", err)
	}

	s.stream = stream
	s.queue = make(chan sinkJob, 64)
	s.cancels = make(map[*playback.Unit]chan struct{})
	s.closed = make(chan struct{})
	s.writer = make(chan struct{})

	go s.run()
	return nil
}

// Play implements playback.Sink. Units are rendered in submission order;
// the scheduler guarantees their start times are non-overlapping and
// non-decreasing.
func (s *Sink) Play(u *playback.Unit, done func()) error {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return errors.New("portaudio: sink not open")
	}
	cancel := make(chan struct{})
	s.cancels[u] = cancel
	queue := s.queue
	closed := s.closed
	s.mu.Unlock()

	select {
	case queue <- sinkJob{unit: u, done: done}:
		return nil
	case <-closed:
		return errors.New("portaudio: sink closed")
	}
}

// Stop implements playback.Sink: aborts the unit immediately, even
// mid-buffer. Its done callback will not fire.
func (s *Sink) Stop(u *playback.Unit) {
	s.mu.Lock()
	cancel, ok := s.cancels[u]
	if ok {
		delete(s.cancels, u)
	}
	s.mu.Unlock()
	if ok {
		close(cancel)
	}
}

// Close implements playback.Sink: stops the writer, aborts the device
// stream, and releases the device context.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return nil
	}
	stream := s.stream
	s.stream = nil
	close(s.closed)
	writer := s.writer
	s.mu.Unlock()

	<-writer // wait for the writer goroutine to exit

	if err := stream.Abort(); err != nil {
		slog.Warn("portaudio: abort output", "err", err)
	}
	err := stream.Close()
	pa.Terminate()
	if err != nil {
		return fmt.Errorf("portaudio: close output: %w", err)
	}
	return nil
}

// run is the writer goroutine: it renders queued units at their scheduled
// start times.
func (s *Sink) run() {
	defer close(s.writer)
	for {
		select {
		case <-s.closed:
			return
		case job := <-s.queue:
			s.render(job)
		}
	}
}

// render waits for the unit's start time, then writes its samples to the
// device in fixed blocks, honouring cancellation between blocks.
func (s *Sink) render(job sinkJob) {
	u := job.unit

	s.mu.Lock()
	cancel := s.cancels[u]
	stream := s.stream
	s.mu.Unlock()
	if cancel == nil || stream == nil {
		return // stopped before it started
	}

	// Wait until the scheduled start. The scheduler never schedules in the
	// past, so a short sleep is the common case.
	if wait := u.StartAt - s.clock.Now(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-cancel:
			return
		case <-s.closed:
			return
		}
	}

	stopped := func() bool {
		select {
		case <-cancel:
			return true
		case <-s.closed:
			return true
		default:
			return false
		}
	}
	aborted, err := renderBlocks(u.Samples, s.buf[:writeBlock], stopped, func(n int) error {
		s.buf = s.buf[:n]
		return stream.Write()
	})
	if aborted {
		return
	}
	if err != nil {
		slog.Warn("portaudio: write failed, dropping unit remainder", "err", err)
	}

	s.mu.Lock()
	delete(s.cancels, u)
	s.mu.Unlock()
	job.done()
}

// renderBlocks feeds samples to write in blocks of at most len(block)
// samples. The final call carries exactly the remainder, never zero
// padding: trailing silence between back-to-back units would be audible
// and would push each unit's real end time past its scheduled length.
// stopped is polled between blocks; true abandons the remainder.
func renderBlocks(samples, block []float32, stopped func() bool, write func(n int) error) (aborted bool, err error) {
	for len(samples) > 0 {
		if stopped() {
			return true, nil
		}
		n := copy(block, samples)
		samples = samples[n:]
		if err := write(n); err != nil {
			return false, err
		}
	}
	return false, nil
}
