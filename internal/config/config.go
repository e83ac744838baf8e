// Package config provides the configuration schema and loader for the
// Voxtide voice assistant.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Voxtide process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DetectorMode selects how utterance boundaries are found.
type DetectorMode string

const (
	// ModeVAD scores microphone frames with a voice-activity model and
	// opens/closes utterances automatically.
	ModeVAD DetectorMode = "vad"

	// ModePushToTalk bounds the utterance by explicit user start/stop
	// actions; no model is involved.
	ModePushToTalk DetectorMode = "push_to_talk"
)

// IsValid reports whether m is a recognised detector mode.
func (m DetectorMode) IsValid() bool {
	return m == ModeVAD || m == ModePushToTalk
}

// Codec identifies the audio encoding requested from the synthesis service.
type Codec string

const (
	CodecPCM  Codec = "pcm_s16le"
	CodecOpus Codec = "opus"
)

// IsValid reports whether c is a recognised synthesis codec.
func (c Codec) IsValid() bool {
	return c == CodecPCM || c == CodecOpus
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "800ms" or "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Voxtide.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Detector   DetectorConfig   `yaml:"detector"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Reply      ReplyConfig      `yaml:"reply"`
	Synth      SynthConfig      `yaml:"synth"`
	Prefs      PrefsConfig      `yaml:"prefs"`
}

// ServerConfig holds network and logging settings for the operational
// HTTP endpoint (health, readiness, metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the endpoint listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the capture-stream parameters shared by the detector
// and the utterance encoder.
type AudioConfig struct {
	// SampleRate in Hz of the microphone stream. Must match what the VAD
	// model expects (16000 for Silero).
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per capture frame (512 at 16 kHz
	// for Silero).
	FrameSize int `yaml:"frame_size"`
}

// DetectorConfig holds the speech-boundary tuning parameters.
// Zero duration/threshold fields take the detector package defaults.
type DetectorConfig struct {
	// Mode selects automatic VAD or push-to-talk boundaries.
	Mode DetectorMode `yaml:"mode"`

	// ModelPath is the filesystem path to the Silero ONNX model.
	// Required when Mode is "vad".
	ModelPath string `yaml:"model_path"`

	// SpeechThreshold is the activity score at or above which a frame
	// counts as speech, in (0, 1].
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// StartFrames is the number of consecutive speech frames required
	// before an utterance opens.
	StartFrames int `yaml:"start_frames"`

	// TrailingSilence is how long activity must stay below the threshold
	// before an open utterance closes.
	TrailingSilence Duration `yaml:"trailing_silence"`

	// MinUtterance is the minimum utterance duration; anything shorter is
	// discarded as a misfire.
	MinUtterance Duration `yaml:"min_utterance"`
}

// EndpointConfig names a single remote service endpoint.
type EndpointConfig struct {
	// Name identifies the endpoint in logs and circuit-breaker state.
	Name string `yaml:"name"`

	// URL is the service address.
	URL string `yaml:"url"`

	// APIKey authenticates requests to this endpoint, if required.
	APIKey string `yaml:"api_key"`
}

// TranscribeConfig holds the transcription service settings.
type TranscribeConfig struct {
	// Endpoint is the primary transcription service.
	Endpoint EndpointConfig `yaml:"endpoint"`

	// Fallbacks are tried in order when the primary is unavailable.
	Fallbacks []EndpointConfig `yaml:"fallbacks"`

	// Language is an optional BCP-47 hint forwarded with each upload.
	// Leave empty for automatic detection.
	Language string `yaml:"language"`
}

// ReplyConfig holds the conversational model settings.
type ReplyConfig struct {
	// Model is the chat-completion model identifier (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// APIKey authenticates with the model provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the built-in default.
	BaseURL string `yaml:"base_url"`

	// SystemPrompt is prepended to every conversation.
	SystemPrompt string `yaml:"system_prompt"`
}

// SynthConfig holds the speech-synthesis service settings.
type SynthConfig struct {
	// Endpoint is the primary synthesis service.
	Endpoint EndpointConfig `yaml:"endpoint"`

	// Fallbacks are tried in order when the primary is unavailable,
	// before any audio has been delivered.
	Fallbacks []EndpointConfig `yaml:"fallbacks"`

	// Voice is the provider-specific voice identifier.
	Voice string `yaml:"voice"`

	// Codec selects the wire encoding. Defaults to pcm_s16le.
	Codec Codec `yaml:"codec"`
}

// PrefsConfig locates the persisted user preferences.
type PrefsConfig struct {
	// Path is the preferences file location (e.g.,
	// "~/.config/voxtide/prefs.yaml"). Required.
	Path string `yaml:"path"`
}
