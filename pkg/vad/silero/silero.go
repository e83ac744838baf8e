// Package silero provides a Silero-VAD-backed [vad.Engine] using the ONNX
// runtime bindings from silero-vad-go.
//
// The binding exposes per-frame stream events (speech started / speech
// ended) rather than raw model probabilities, so Score reports a saturated
// probability: 1.0 while the model considers the stream inside a speech
// segment and 0.0 otherwise. The boundary detector's own sustain and
// trailing-silence windows still apply on top.
package silero

import (
	"errors"
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/voxtide/voxtide/pkg/vad"
)

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates Silero VAD sessions. The ONNX model file is loaded lazily,
// once per session, so constructing the Engine itself never touches disk.
type Engine struct {
	modelPath string
}

// New creates an Engine that loads the Silero ONNX model from modelPath on
// the first session. modelPath must be non-empty.
func New(modelPath string) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("silero: modelPath must not be empty")
	}
	return &Engine{modelPath: modelPath}, nil
}

// NewSession implements vad.Engine. Model load failures (missing file,
// unsupported runtime) surface here as initialization errors.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("silero: unsupported sample rate %d (want 8000 or 16000)", cfg.SampleRate)
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  e.modelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  float32(threshold),
	})
	if err != nil {
		return nil, fmt.Errorf("silero: load model %q: %w", e.modelPath, err)
	}
	return &session{det: det, frameSize: cfg.FrameSize}, nil
}

// session wraps one Silero detector instance. Not safe for concurrent use —
// the ONNX session carries hidden state between frames.
type session struct {
	mu        sync.Mutex
	det       *speech.Detector
	frameSize int
	inSpeech  bool
	closed    bool
}

func (s *session) Score(frame []float32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New("silero: session is closed")
	}
	if s.frameSize > 0 && len(frame) != s.frameSize {
		return 0, fmt.Errorf("silero: frame size %d, want %d", len(frame), s.frameSize)
	}

	event, err := s.det.DetectStreamFrame(frame)
	if err != nil {
		// The binding reports a desynchronised end event as an error; reset
		// the model state and treat the frame as silence.
		s.det.Reset()
		s.inSpeech = false
		return 0, nil
	}
	if event != nil {
		if event.IsStart {
			s.inSpeech = true
		}
		if event.IsEnd {
			s.inSpeech = false
		}
	}
	if s.inSpeech {
		return 1, nil
	}
	return 0, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.det.Reset()
	s.inSpeech = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.det.Destroy()
}
