package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/voxtide/voxtide/pkg/audio"
)

// Frame codecs the service may stream.
const (
	CodecPCM  = "pcm_s16le"
	CodecOpus = "opus"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithVoice selects the synthesis voice.
func WithVoice(voice string) Option {
	return func(c *Client) { c.voice = voice }
}

// WithCodec selects the wire codec (CodecPCM or CodecOpus). Opus trades
// CPU for a much smaller stream.
func WithCodec(codec string) Option {
	return func(c *Client) { c.codec = codec }
}

// WithHTTPClient overrides the HTTP client used for the WebSocket dial.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Compile-time assertion that Client satisfies Synthesizer.
var _ Synthesizer = (*Client)(nil)

// Client streams synthesized speech over a WebSocket. Safe for concurrent
// use; each Synthesize call opens its own connection.
//
// Wire protocol, in order:
//  1. client sends one JSON text frame: the synthesis request
//  2. server sends one JSON text frame: the fixed audio format
//  3. server sends binary frames: encoded audio
//  4. server sends a JSON text frame with type "end", or "error"
type Client struct {
	endpoint   string
	apiKey     string
	voice      string
	codec      string
	httpClient *http.Client
}

// New creates a Client for the given WebSocket endpoint (ws:// or wss://).
func New(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("synth: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		codec:    CodecPCM,
	}
	for _, o := range opts {
		o(c)
	}
	if c.codec != CodecPCM && c.codec != CodecOpus {
		return nil, fmt.Errorf("synth: unsupported codec %q", c.codec)
	}
	return c, nil
}

// request is the opening frame sent to the service.
type request struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Codec string `json:"codec"`
}

// controlFrame is any JSON text frame received from the service.
type controlFrame struct {
	Type       string `json:"type"` // "format", "end" or "error"
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	BitDepth   int    `json:"bit_depth,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Synthesize implements Synthesizer.
func (c *Client) Synthesize(ctx context.Context, text string, onChunk func(pcm []byte, format audio.Format)) error {
	clean := Sanitize(text)
	if clean == "" {
		return nil
	}

	opts := &websocket.DialOptions{HTTPClient: c.httpClient}
	if c.apiKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.apiKey}}
	}
	conn, _, err := websocket.Dial(ctx, c.endpoint, opts)
	if err != nil {
		if ctx.Err() != nil {
			return ErrAborted
		}
		return fmt.Errorf("synth: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(4 << 20) // audio frames exceed the library default

	req, _ := json.Marshal(request{Text: clean, Voice: c.voice, Codec: c.codec})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		return wireErr(ctx, "send request", err)
	}

	format, err := c.readFormat(ctx, conn)
	if err != nil {
		return err
	}

	var dec *opusDecoder
	if c.codec == CodecOpus {
		dec, err = newOpusDecoder(format)
		if err != nil {
			return err
		}
	}

	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return wireErr(ctx, "read stream", err)
		}
		switch typ {
		case websocket.MessageBinary:
			pcm := payload
			if dec != nil {
				pcm, err = dec.decode(payload)
				if err != nil {
					return err
				}
			}
			if len(pcm) > 0 {
				onChunk(pcm, format)
			}
		case websocket.MessageText:
			var frame controlFrame
			if err := json.Unmarshal(payload, &frame); err != nil {
				return fmt.Errorf("synth: malformed control frame: %w", err)
			}
			switch frame.Type {
			case "end":
				return nil
			case "error":
				return fmt.Errorf("synth: service error: %s", frame.Message)
			default:
				return fmt.Errorf("synth: unexpected control frame %q mid-stream", frame.Type)
			}
		}
	}
}

// readFormat consumes the mandatory format frame that precedes any audio.
func (c *Client) readFormat(ctx context.Context, conn *websocket.Conn) (audio.Format, error) {
	typ, payload, err := conn.Read(ctx)
	if err != nil {
		return audio.Format{}, wireErr(ctx, "read format", err)
	}
	if typ != websocket.MessageText {
		return audio.Format{}, errors.New("synth: first frame must declare the audio format")
	}
	var frame controlFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return audio.Format{}, fmt.Errorf("synth: malformed format frame: %w", err)
	}
	if frame.Type == "error" {
		return audio.Format{}, fmt.Errorf("synth: service error: %s", frame.Message)
	}
	if frame.Type != "format" || frame.SampleRate <= 0 || frame.Channels <= 0 || frame.BitDepth <= 0 {
		return audio.Format{}, fmt.Errorf("synth: invalid format frame: %+v", frame)
	}
	return audio.Format{
		SampleRate: frame.SampleRate,
		Channels:   frame.Channels,
		BitDepth:   frame.BitDepth,
	}, nil
}

// wireErr maps a transport failure to ErrAborted when the context caused it.
func wireErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	return fmt.Errorf("synth: %s: %w", op, err)
}
