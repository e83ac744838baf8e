// Package audio holds the shared audio types and sample-level helpers used
// across the voxtide pipeline: capture frames, bounded utterances, PCM
// format descriptors, and the WAV container encoder.
package audio

import "time"

// Format describes the PCM layout of an audio byte stream.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for STT input, 24000 for synthesis output).
	SampleRate int

	// Channels is the number of interleaved channels. The pipeline is mono
	// end to end, so this is 1 everywhere except at device boundaries.
	Channels int

	// BitDepth is the bits per sample. Only 16-bit little-endian PCM is used.
	BitDepth int
}

// Frame is one block of captured microphone audio. Frames are the unit the
// voice-activity detector scores; their size is fixed per capture session.
type Frame struct {
	// Samples are mono float32 samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz of the samples.
	SampleRate int

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Utterance is one bounded span of captured speech, from detected start to
// detected end. It is produced by a boundary detector and consumed exactly
// once by the transcriber.
type Utterance struct {
	// Samples are mono float32 samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz of the samples.
	SampleRate int
}

// Duration returns the wall-clock length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}
