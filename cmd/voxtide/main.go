// Command voxtide is the entry point for the Voxtide voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxtide/voxtide/internal/config"
	"github.com/voxtide/voxtide/internal/health"
	"github.com/voxtide/voxtide/internal/mute"
	"github.com/voxtide/voxtide/internal/observe"
	"github.com/voxtide/voxtide/internal/resilience"
	"github.com/voxtide/voxtide/internal/session"
	"github.com/voxtide/voxtide/pkg/audio/playback"
	"github.com/voxtide/voxtide/pkg/audio/portaudio"
	"github.com/voxtide/voxtide/pkg/detector"
	"github.com/voxtide/voxtide/pkg/reply/openai"
	"github.com/voxtide/voxtide/pkg/synth"
	"github.com/voxtide/voxtide/pkg/transcribe"
	"github.com/voxtide/voxtide/pkg/vad/silero"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// Capture defaults matching the Silero VAD model's expectations.
const (
	defaultSampleRate = 16000
	defaultFrameSize  = 512
	defaultListenAddr = ":8080"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxtide: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxtide: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxtide starting",
		"version", version,
		"config", *configPath,
		"detector_mode", cfg.Detector.Mode,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Collaborators ─────────────────────────────────────────────────────────
	boundary, err := buildDetector(cfg)
	if err != nil {
		slog.Error("failed to build speech detector", "err", err)
		return 1
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		slog.Error("failed to build transcriber", "err", err)
		return 1
	}

	synthesizer, err := buildSynthesizer(cfg)
	if err != nil {
		slog.Error("failed to build synthesizer", "err", err)
		return 1
	}

	var replyOpts []openai.Option
	if cfg.Reply.BaseURL != "" {
		replyOpts = append(replyOpts, openai.WithBaseURL(cfg.Reply.BaseURL))
	}
	if cfg.Reply.SystemPrompt != "" {
		replyOpts = append(replyOpts, openai.WithSystemPrompt(cfg.Reply.SystemPrompt))
	}
	replies, err := openai.New(cfg.Reply.APIKey, cfg.Reply.Model, replyOpts...)
	if err != nil {
		slog.Error("failed to build reply provider", "err", err)
		return 1
	}

	prefs, err := mute.Open(cfg.Prefs.Path)
	if err != nil {
		slog.Error("failed to open preference store", "path", cfg.Prefs.Path, "err", err)
		return 1
	}

	clock := playback.NewClock()
	scheduler := playback.New(clock, portaudio.NewSinkFactory(clock))

	ctrl, err := session.New(session.Config{
		Detector:    boundary,
		Transcriber: transcriber,
		Replies:     replies,
		Synth:       synthesizer,
		Playback:    scheduler,
		Mute:        prefs,
	})
	if err != nil {
		slog.Error("failed to build session controller", "err", err)
		return 1
	}

	// ── Operational HTTP endpoint ─────────────────────────────────────────────
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	checks := health.New(
		health.Checker{Name: "prefs", Check: func(context.Context) error {
			_, err := os.Stat(filepath.Dir(cfg.Prefs.Path))
			return err
		}},
	)
	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("ready — press Ctrl+C to shut down", "listen_addr", addr)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctrl.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		logEvents(gctx, ctrl.Events())
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Collaborator wiring ───────────────────────────────────────────────────────

// buildDetector constructs the configured speech-boundary detector over the
// default microphone.
func buildDetector(cfg *config.Config) (detector.Boundary, error) {
	sampleRate := cfg.Audio.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	frameSize := cfg.Audio.FrameSize
	if frameSize == 0 {
		frameSize = defaultFrameSize
	}

	source, err := portaudio.NewSource(portaudio.SourceConfig{
		SampleRate: sampleRate,
		FrameSize:  frameSize,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Detector.Mode == config.ModePushToTalk {
		return detector.NewPushToTalk(source, cfg.Detector.MinUtterance.Std())
	}

	engine, err := silero.New(cfg.Detector.ModelPath)
	if err != nil {
		return nil, err
	}
	return detector.New(source, engine, detector.Config{
		SampleRate:      sampleRate,
		FrameSize:       frameSize,
		SpeechThreshold: cfg.Detector.SpeechThreshold,
		StartFrames:     cfg.Detector.StartFrames,
		TrailingSilence: cfg.Detector.TrailingSilence.Std(),
		MinUtterance:    cfg.Detector.MinUtterance.Std(),
	})
}

// buildTranscriber constructs the transcription client, wrapped in a
// failover group when fallback endpoints are configured.
func buildTranscriber(cfg *config.Config) (transcribe.Transcriber, error) {
	newClient := func(ep config.EndpointConfig) (transcribe.Transcriber, error) {
		var opts []transcribe.Option
		if cfg.Transcribe.Language != "" {
			opts = append(opts, transcribe.WithLanguage(cfg.Transcribe.Language))
		}
		return transcribe.New(ep.URL, transcribe.StaticToken(ep.APIKey), opts...)
	}

	primary, err := newClient(cfg.Transcribe.Endpoint)
	if err != nil {
		return nil, err
	}
	if len(cfg.Transcribe.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewFallbackTranscriber(primary, endpointName(cfg.Transcribe.Endpoint), resilience.FallbackConfig{})
	for _, ep := range cfg.Transcribe.Fallbacks {
		client, err := newClient(ep)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", ep.Name, err)
		}
		group.AddFallback(ep.Name, client)
	}
	return group, nil
}

// buildSynthesizer constructs the synthesis client, wrapped in a failover
// group when fallback endpoints are configured.
func buildSynthesizer(cfg *config.Config) (synth.Synthesizer, error) {
	newClient := func(ep config.EndpointConfig) (synth.Synthesizer, error) {
		opts := []synth.Option{synth.WithVoice(cfg.Synth.Voice)}
		if cfg.Synth.Codec != "" {
			opts = append(opts, synth.WithCodec(string(cfg.Synth.Codec)))
		}
		return synth.New(ep.URL, ep.APIKey, opts...)
	}

	primary, err := newClient(cfg.Synth.Endpoint)
	if err != nil {
		return nil, err
	}
	if len(cfg.Synth.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewFallbackSynthesizer(primary, endpointName(cfg.Synth.Endpoint), resilience.FallbackConfig{})
	for _, ep := range cfg.Synth.Fallbacks {
		client, err := newClient(ep)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", ep.Name, err)
		}
		group.AddFallback(ep.Name, client)
	}
	return group, nil
}

func endpointName(ep config.EndpointConfig) string {
	if ep.Name != "" {
		return ep.Name
	}
	return "primary"
}

// ── Session event log ─────────────────────────────────────────────────────────

// logEvents mirrors the session's observable feed into the structured log.
// This is the terminal UI of the assistant.
func logEvents(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Type {
			case session.EventPhase:
				slog.Info("session phase", "phase", ev.Phase)
			case session.EventUserText:
				slog.Info("user said", "text", ev.Text)
			case session.EventAssistantText:
				slog.Info("assistant replied", "text", ev.Text)
			case session.EventError:
				slog.Warn("session error", "kind", ev.Err.Kind, "message", ev.Err.Message)
			case session.EventErrorCleared:
				slog.Debug("session error cleared")
			}
		}
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
