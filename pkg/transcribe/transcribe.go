// Package transcribe turns one bounded utterance into text via a remote
// speech-to-text endpoint.
//
// The endpoint contract is a binary WAV upload returning a small JSON body.
// Transport and service failures are converted into the package's typed
// errors at this boundary — callers never see raw HTTP errors. The retry
// policy lives with the caller: ErrServiceUnavailable and ErrNetwork are
// retry-eligible, ErrAuthExpired and ErrBadAudio are not.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Typed failure kinds, compared with errors.Is.
var (
	// ErrAuthExpired means the bearer credential was rejected. Not
	// retryable here — the caller routes this to the re-auth flow.
	ErrAuthExpired = errors.New("transcribe: credential expired")

	// ErrBadAudio means the service rejected the audio itself (too short,
	// silent, malformed). Not retryable.
	ErrBadAudio = errors.New("transcribe: audio rejected")

	// ErrServiceUnavailable means the service answered with a server error.
	// The caller may retry once.
	ErrServiceUnavailable = errors.New("transcribe: service unavailable")

	// ErrNetwork means the request never completed. The caller may retry.
	ErrNetwork = errors.New("transcribe: network failure")
)

// Result is a successful transcription. Text may be empty after trimming —
// that is the "not understood" soft outcome, deliberately not an error.
type Result struct {
	// Text is the transcribed speech, whitespace-trimmed.
	Text string

	// DurationSeconds is the utterance length as measured by the service.
	// Zero when the service does not report it.
	DurationSeconds float64

	// Language is the detected BCP-47 language tag, if reported.
	Language string
}

// Understood reports whether the service produced any usable text.
func (r Result) Understood() bool {
	return r.Text != ""
}

// Transcriber is the abstraction the session controller depends on.
type Transcriber interface {
	// Transcribe uploads one encoded WAV container and returns the result
	// or one of the package's typed errors. The container is not retained
	// after the call returns.
	Transcribe(ctx context.Context, container []byte) (Result, error)
}

// TokenSource supplies the bearer credential for each request. It is the
// seam to the external auth collaborator.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token. Suitable for
// long-lived API keys; expiring credentials need a refreshing source.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Client) { t.httpClient = c }
}

// WithLanguage sets a fixed recognition language hint (e.g., "en").
// Empty lets the service auto-detect.
func WithLanguage(lang string) Option {
	return func(t *Client) { t.language = lang }
}

// Compile-time assertion that Client satisfies Transcriber.
var _ Transcriber = (*Client)(nil)

// Client is the HTTP implementation of Transcriber. Safe for concurrent
// use.
type Client struct {
	endpoint   string
	tokens     TokenSource
	language   string
	httpClient *http.Client
}

// New creates a Client posting to endpoint (e.g.,
// "https://api.example.com/v1/transcribe"). tokens must not be nil.
func New(endpoint string, tokens TokenSource, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("transcribe: endpoint must not be empty")
	}
	if tokens == nil {
		return nil, errors.New("transcribe: token source must not be nil")
	}
	c := &Client{
		endpoint:   endpoint,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// response is the JSON body of a successful transcription.
type response struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
	Language        string  `json:"language"`
}

// Transcribe implements Transcriber.
func (c *Client) Transcribe(ctx context.Context, container []byte) (Result, error) {
	token, err := c.tokens(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: acquire credential: %v", ErrAuthExpired, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: build request: %w", err)
	}
	if _, err := part.Write(container); err != nil {
		return Result{}, fmt.Errorf("transcribe: build request: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return Result{}, fmt.Errorf("transcribe: build request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("transcribe: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, err
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}
	return Result{
		Text:            strings.TrimSpace(r.Text),
		DurationSeconds: r.DurationSeconds,
		Language:        r.Language,
	}, nil
}

// classifyStatus maps an HTTP status to the package error taxonomy.
// 2xx returns nil.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthExpired, status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: status %d", ErrBadAudio, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, status)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrServiceUnavailable, status)
	}
}
