package session

// Phase is the controller's position in the voice turn lifecycle.
type Phase int

const (
	// PhaseIdle means no microphone is active.
	PhaseIdle Phase = iota

	// PhaseListening means the detector is waiting for speech.
	PhaseListening

	// PhaseRecording means an utterance is being captured.
	PhaseRecording

	// PhaseTranscribing means a captured utterance is at the transcriber.
	PhaseTranscribing

	// PhaseSpeaking means reply audio is being synthesized or played.
	PhaseSpeaking
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseRecording:
		return "recording"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// EventType discriminates session events.
type EventType int

const (
	// EventPhase signals a lifecycle transition; Event.Phase is set.
	EventPhase EventType = iota

	// EventUserText carries the transcript of the user's utterance.
	EventUserText

	// EventAssistantText carries one sentence of the assistant's reply,
	// emitted incrementally as the reply streams.
	EventAssistantText

	// EventError carries a session error; Event.Err is set.
	EventError

	// EventErrorCleared signals that the previously published transient
	// error expired.
	EventErrorCleared
)

// Event is one entry of the session's observable feed. Consumers that fall
// behind lose events rather than stalling the pipeline.
type Event struct {
	Type  EventType
	Phase Phase
	Text  string
	Err   *Error
}
