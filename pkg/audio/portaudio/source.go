// Package portaudio provides the PortAudio-backed device adapters: a
// [capture.Source] for the microphone and a [playback.Sink] for the
// speakers. It is the only package that touches the audio hardware.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/capture"
)

// Compile-time assertion that Source satisfies capture.Source.
var _ capture.Source = (*Source)(nil)

// SourceConfig configures the microphone stream.
type SourceConfig struct {
	// SampleRate in Hz. 16000 for the Silero VAD path.
	SampleRate int

	// FrameSize is the number of samples per delivered frame (512 for
	// Silero at 16 kHz).
	FrameSize int
}

// Source captures mono float32 frames from the default input device. It
// owns the device handle exclusively between Start and Stop.
type Source struct {
	cfg SourceConfig

	mu      sync.Mutex
	stream  *pa.Stream
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

// NewSource creates a microphone Source. No device is touched until Start.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: SampleRate and FrameSize are required, got %d/%d", cfg.SampleRate, cfg.FrameSize)
	}
	return &Source{cfg: cfg}, nil
}

// Start implements capture.Source. Failure to acquire the default input
// device is reported as [capture.ErrPermissionDenied] — PortAudio does not
// distinguish denial from absence, and both are fatal for the session.
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("portaudio: source already started")
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	buf := make([]float32, s.cfg.FrameSize)
	stream, err := pa.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), len(buf), buf)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	frames := make(chan audio.Frame, 8)
	done := make(chan struct{})
	s.stream = stream
	s.running = true
	s.stop = cancel
	s.done = done

	go func() {
		defer close(done)
		defer close(frames)
		start := time.Now()
		for {
			if runCtx.Err() != nil {
				return
			}
			if err := stream.Read(); err != nil {
				if runCtx.Err() == nil {
					slog.Warn("portaudio: read failed, stopping capture", "err", err)
				}
				return
			}
			frame := audio.Frame{
				Samples:    append([]float32(nil), buf...),
				SampleRate: s.cfg.SampleRate,
				Timestamp:  time.Since(start),
			}
			select {
			case frames <- frame:
			default:
				// Consumer stalled; drop the frame rather than block the
				// device read loop.
			}
		}
	}()

	return frames, nil
}

// Stop implements capture.Source: halts the read loop, closes the device
// stream, and releases the PortAudio handle so the microphone can be
// reacquired.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.stop()
	if err := s.stream.Abort(); err != nil {
		slog.Warn("portaudio: abort stream", "err", err)
	}
	<-s.done
	err := s.stream.Close()
	pa.Terminate()
	s.stream = nil
	s.running = false
	s.stop = nil
	s.done = nil
	if err != nil {
		return fmt.Errorf("portaudio: close stream: %w", err)
	}
	return nil
}
