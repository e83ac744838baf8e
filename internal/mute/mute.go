// Package mute persists the user's voice-output preference across runs.
//
// The flag gates synthesis at the controller: while muted, no synthesis
// request leaves the process at all.
package mute

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// prefs is the on-disk schema. Kept open for future voice preferences.
type prefs struct {
	Muted bool `yaml:"muted"`
}

// Store holds the persisted mute flag. Safe for concurrent use.
type Store struct {
	path string

	mu    sync.Mutex
	muted bool
}

// Open loads the preference file at path, creating nothing yet. A missing
// file means unmuted; a corrupt file is an error rather than a silent
// default, so a bad deploy does not quietly unmute anyone.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("mute: path must not be empty")
	}
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mute: read %q: %w", path, err)
	}
	var p prefs
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("mute: parse %q: %w", path, err)
	}
	s.muted = p.Muted
	return s, nil
}

// Muted reports the current flag.
func (s *Store) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Set persists the flag and updates the in-memory value. The in-memory
// value only changes when the write succeeded, so the running session and
// the file never disagree.
func (s *Store) Set(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(prefs{Muted: muted}); err != nil {
		return err
	}
	s.muted = muted
	return nil
}

// Toggle flips the flag, persists it, and returns the new value.
func (s *Store) Toggle() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := !s.muted
	if err := s.write(prefs{Muted: next}); err != nil {
		return s.muted, err
	}
	s.muted = next
	return next, nil
}

// write replaces the preference file atomically via a same-directory temp
// file and rename.
func (s *Store) write(p prefs) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("mute: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mute: create %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("mute: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("mute: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("mute: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("mute: replace %q: %w", s.path, err)
	}
	return nil
}
