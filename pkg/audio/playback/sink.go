// Package playback schedules an incremental PCM byte stream as continuous,
// gapless audio.
//
// The [Scheduler] accepts arbitrarily sized byte chunks (not necessarily
// aligned to the 2-byte sample boundary), decodes them to float32 line
// audio, and schedules each decoded unit back-to-back against a monotonic
// clock. A generation token gates every mutation so that chunks belonging
// to a superseded speaking turn are discarded without observable effect.
//
// The output device is modelled as a [Sink] created lazily per speaking
// turn and closed on Reset — device contexts are expensive and must not
// accumulate across repeated start/stop cycles.
package playback

import (
	"time"

	"github.com/voxtide/voxtide/pkg/audio"
)

// Clock provides monotonic time for playback scheduling. The zero point is
// arbitrary; only differences matter.
type Clock interface {
	Now() time.Duration
}

// NewClock returns a Clock backed by the process monotonic clock.
func NewClock() Clock {
	return &realClock{start: time.Now()}
}

type realClock struct {
	start time.Time
}

func (c *realClock) Now() time.Duration {
	return time.Since(c.start)
}

// Unit is one scheduled, decoded audio chunk: created when a chunk is
// decoded, held in the scheduler's active set while playing, removed on its
// end-of-playback callback.
type Unit struct {
	// Samples are the decoded mono float32 samples.
	Samples []float32

	// Format is the PCM format the samples were decoded from.
	Format audio.Format

	// StartAt is the scheduled start time on the scheduler's clock.
	// Invariant: StartAt ≥ max(clock at schedule time, previous unit's end).
	StartAt time.Duration

	// Length is the playback duration of the samples.
	Length time.Duration

	gen uint64
}

// Sink renders scheduled units on an audio output device. Implementations
// are device adapters (see audio/portaudio); tests use recording fakes.
//
// A Sink is owned by exactly one Scheduler and opened for one speaking turn.
type Sink interface {
	// Open prepares the output device for the given format. Called once per
	// sink, before the first Play.
	Open(format audio.Format) error

	// Play schedules u to start at u.StartAt on the scheduler's clock and
	// returns without blocking. done is invoked exactly once when the unit
	// finishes playing naturally; it must not be invoked after Stop(u).
	Play(u *Unit, done func()) error

	// Stop halts u immediately, even mid-sample. Stopping a unit that is
	// not playing is a no-op.
	Stop(u *Unit)

	// Close releases the device context. The sink cannot be reused.
	Close() error
}
