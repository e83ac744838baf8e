// Package vad defines the Engine interface for voice-activity scoring
// backends.
//
// A VAD engine wraps a frame-level speech model (e.g., Silero VAD) and
// surfaces it as a stateful, per-stream session. Each session keeps its own
// internal state (model hidden state, smoothing history) so that independent
// capture streams can be scored concurrently.
//
// Scoring is synchronous by design: Score returns immediately with a speech
// probability for the frame, making it suitable for the capture loop that
// gates utterance boundaries.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// Score. Silero supports 8000 and 16000.
	SampleRate int

	// FrameSize is the number of samples per frame. Most models require a
	// fixed frame size (512 samples at 16 kHz for Silero). Score returns an
	// error for frames of any other length.
	FrameSize int

	// Threshold is the probability above which the backend classifies a
	// frame as speech, for backends that threshold internally. Range [0, 1].
	Threshold float64
}

// Session is an active scoring session for a single audio stream. A Session
// must not be shared across goroutines unless the implementation documents
// otherwise.
type Session interface {
	// Score returns the speech probability (0.0–1.0) for one audio frame of
	// exactly Config.FrameSize mono float32 samples. It must not block.
	Score(frame []float32) (float64, error)

	// Reset clears accumulated detection state without closing the session.
	// Call it when the capture stream is interrupted or restarted so stale
	// model state does not bleed into the next segment.
	Reset()

	// Close releases the session's resources. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent use; multiple goroutines may call NewSession simultaneously.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid or model resources cannot be
	// allocated — for the detector this is a fatal initialization error,
	// not a retryable one.
	NewSession(cfg Config) (Session, error)
}
