package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}

	// Detector
	if cfg.Detector.Mode != "" && !cfg.Detector.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("detector.mode %q is invalid; valid values: vad, push_to_talk", cfg.Detector.Mode))
	}
	if cfg.Detector.Mode != ModePushToTalk && cfg.Detector.ModelPath == "" {
		errs = append(errs, errors.New("detector.model_path is required when mode is vad"))
	}
	if t := cfg.Detector.SpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("detector.speech_threshold %.2f is out of range (0, 1]", t))
	}
	if cfg.Detector.TrailingSilence < 0 {
		errs = append(errs, errors.New("detector.trailing_silence must not be negative"))
	}
	if cfg.Detector.MinUtterance < 0 {
		errs = append(errs, errors.New("detector.min_utterance must not be negative"))
	}

	// Transcription
	if cfg.Transcribe.Endpoint.URL == "" {
		errs = append(errs, errors.New("transcribe.endpoint.url is required"))
	}
	errs = append(errs, validateFallbacks("transcribe", cfg.Transcribe.Fallbacks)...)

	// Reply
	if cfg.Reply.Model == "" {
		errs = append(errs, errors.New("reply.model is required"))
	}
	if cfg.Reply.APIKey == "" {
		slog.Warn("reply.api_key is empty; the conversation provider will reject requests unless the endpoint is unauthenticated")
	}

	// Synthesis
	if cfg.Synth.Endpoint.URL == "" {
		errs = append(errs, errors.New("synth.endpoint.url is required"))
	}
	if cfg.Synth.Voice == "" {
		errs = append(errs, errors.New("synth.voice is required"))
	}
	if cfg.Synth.Codec != "" && !cfg.Synth.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("synth.codec %q is invalid; valid values: pcm_s16le, opus", cfg.Synth.Codec))
	}
	errs = append(errs, validateFallbacks("synth", cfg.Synth.Fallbacks)...)

	// Preferences
	if cfg.Prefs.Path == "" {
		errs = append(errs, errors.New("prefs.path is required"))
	}

	return errors.Join(errs...)
}

// validateFallbacks checks that every fallback endpoint under section has a
// name and a URL, and that names are unique.
func validateFallbacks(section string, fallbacks []EndpointConfig) []error {
	var errs []error
	seen := make(map[string]int, len(fallbacks))
	for i, ep := range fallbacks {
		prefix := fmt.Sprintf("%s.fallbacks[%d]", section, i)
		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[ep.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s.fallbacks[%d]", prefix, ep.Name, section, prev))
			}
			seen[ep.Name] = i
		}
		if ep.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
	}
	return errs
}
