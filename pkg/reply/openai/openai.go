// Package openai provides a reply.Provider backed by the OpenAI chat API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxtide/voxtide/pkg/reply"
)

// Provider implements reply.Provider using OpenAI chat completions.
type Provider struct {
	client oai.Client
	model  string
	system string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	system  string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default API base URL. Used to target
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithSystemPrompt sets the instruction injected before the conversation.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) { c.system = prompt }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Compile-time assertion that Provider satisfies reply.Provider.
var _ reply.Provider = (*Provider)(nil)

// New constructs an OpenAI reply Provider. apiKey may be empty when the
// target gateway is unauthenticated.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		system: cfg.system,
	}, nil
}

// Stream implements reply.Provider.
func (p *Provider) Stream(ctx context.Context, history []reply.Turn) (<-chan reply.Chunk, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("openai: history must not be empty")
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, oai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: buildMessages(p.system, history),
	})
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan reply.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case ch <- reply.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			ch <- reply.Chunk{Err: fmt.Errorf("openai: stream: %w", err)}
		}
	}()
	return ch, nil
}

// buildMessages converts the conversation history into chat-completion
// params, prepending the system prompt when set. Roles other than
// "assistant" are treated as user turns.
func buildMessages(system string, history []reply.Turn) []oai.ChatCompletionMessageParamUnion {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	for _, turn := range history {
		switch turn.Role {
		case "assistant":
			messages = append(messages, oai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, oai.UserMessage(turn.Text))
		}
	}
	return messages
}
