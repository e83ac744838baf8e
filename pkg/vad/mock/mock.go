// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame probability scores and inspect how many
// frames were submitted.
package mock

import (
	"sync"

	"github.com/voxtide/voxtide/pkg/vad"
)

// Compile-time interface assertions.
var (
	_ vad.Engine  = (*Engine)(nil)
	_ vad.Session = (*Session)(nil)
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh default Session is
	// returned instead.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.Session. Score returns the values
// in Scores in order, then DefaultScore once the script is exhausted.
type Session struct {
	mu sync.Mutex

	// Scores are returned one per Score call, in order.
	Scores []float64

	// DefaultScore is returned after Scores is exhausted.
	DefaultScore float64

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// FrameCount is the number of Score calls observed.
	FrameCount int

	// ResetCount is the number of Reset calls observed.
	ResetCount int

	// Closed reports whether Close was called.
	Closed bool
}

// Score implements vad.Session.
func (s *Session) Score(_ []float32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	idx := s.FrameCount
	s.FrameCount++
	if idx < len(s.Scores) {
		return s.Scores[idx], nil
	}
	return s.DefaultScore, nil
}

// Reset implements vad.Session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close implements vad.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
