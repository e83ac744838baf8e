// Package capture defines the microphone Source interface.
//
// A Source owns the input device handle exclusively: it is acquired by Start
// and must be released by Stop before it can be reacquired. Implementations
// are provided by device adapter packages (e.g., audio/portaudio); test code
// uses channel-backed fakes.
package capture

import (
	"context"
	"errors"

	"github.com/voxtide/voxtide/pkg/audio"
)

// ErrPermissionDenied is returned by Start when the input device cannot be
// acquired because access was denied. This is fatal for the session — there
// is no retry path; the user has to resolve it.
var ErrPermissionDenied = errors.New("capture: microphone access denied")

// Source delivers fixed-size microphone frames.
//
// The frame channel returned by Start is closed when the stream ends, either
// because Stop was called or because ctx was cancelled. Start after Stop is
// allowed and reacquires the device.
type Source interface {
	// Start acquires the input device and begins delivering frames. Each
	// frame carries exactly the frame size the Source was configured with.
	// Returns ErrPermissionDenied when device access is refused.
	Start(ctx context.Context) (<-chan audio.Frame, error)

	// Stop halts capture and releases the device handle. Calling Stop when
	// not started is a no-op and returns nil.
	Stop() error
}
