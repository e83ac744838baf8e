package session

// ErrorKind classifies user-visible session errors.
type ErrorKind int

const (
	// ErrorPermissionDenied means microphone access was refused. Fatal and
	// persistent until resolved.
	ErrorPermissionDenied ErrorKind = iota

	// ErrorTranscriptionFailed means the utterance could not be
	// transcribed. Retry-eligible.
	ErrorTranscriptionFailed

	// ErrorAuthRequired means the transcription credential expired and the
	// re-authentication flow must run.
	ErrorAuthRequired

	// ErrorSynthesisFailed means voice output failed for this turn; the
	// text reply is still delivered.
	ErrorSynthesisFailed

	// ErrorReplyFailed means the assistant backend failed to produce a
	// reply. Retry-eligible.
	ErrorReplyFailed
)

// String returns the kind name for logging.
func (k ErrorKind) String() string {
	switch k {
	case ErrorPermissionDenied:
		return "permission_denied"
	case ErrorTranscriptionFailed:
		return "transcription_failed"
	case ErrorAuthRequired:
		return "auth_required"
	case ErrorSynthesisFailed:
		return "synthesis_failed"
	case ErrorReplyFailed:
		return "reply_failed"
	default:
		return "unknown"
	}
}

// Error is a classified, user-visible session error. Intentional
// cancellation never becomes an Error; it is filtered before this layer.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "session: " + e.Kind.String() + ": " + e.Message
}

// Persistent reports whether the error stays visible until resolved
// instead of auto-clearing.
func (e *Error) Persistent() bool {
	return e.Kind == ErrorPermissionDenied
}
