package detector

import (
	"context"

	"github.com/voxtide/voxtide/pkg/audio"
)

// EventType classifies boundary events emitted by a detector.
type EventType int

const (
	// SpeechStart marks the beginning of an utterance: the activity score
	// crossed the speech threshold for the configured sustain window.
	SpeechStart EventType = iota

	// SpeechEnd delivers the accumulated utterance after the trailing
	// silence window elapsed.
	SpeechEnd

	// Misfire reports an in-progress utterance shorter than the minimum
	// duration. The buffer is discarded and listening resumes.
	Misfire

	// Failed reports a fatal capture error (device lost mid-stream). The
	// detector stops after emitting it.
	Failed
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "SPEECH_START"
	case SpeechEnd:
		return "SPEECH_END"
	case Misfire:
		return "MISFIRE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Event is one boundary event. Utterance is populated only for SpeechEnd;
// Err only for Failed.
type Event struct {
	Type      EventType
	Utterance audio.Utterance
	Err       error
}

// State is the detector lifecycle state.
type State int

const (
	// Idle means no capture is running.
	Idle State = iota

	// Listening means frames are being scored but no utterance is open.
	Listening

	// Capturing means an utterance is in flight. A new SpeechStart cannot
	// occur until it ends.
	Capturing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Listening:
		return "LISTENING"
	case Capturing:
		return "CAPTURING"
	default:
		return "UNKNOWN"
	}
}

// Boundary is the common contract of the VAD detector and the push-to-talk
// variant, so the session controller is agnostic to which is active.
type Boundary interface {
	// Start begins a capture run and returns its event stream. The channel
	// is closed when the run ends (Stop, context cancellation, or a Failed
	// event).
	Start(ctx context.Context) (<-chan Event, error)

	// Stop halts capture and releases the microphone. Safe to call when not
	// started.
	Stop() error
}
