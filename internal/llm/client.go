// Package llm wraps the external chat/vision completion provider behind a
// small gateway: receipt extraction, budget advice, snapshot-grounded chat
// and the weather stub, with a shared decode-or-repair step for every call
// that must return JSON.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrProvider covers network and provider-side failures.
	ErrProvider = errors.New("llm provider error")
	// ErrResponseShape means the model's output could not be parsed into the
	// requested JSON shape even after the repair retry.
	ErrResponseShape = errors.New("response validation failed")
)

// Completer issues one chat completion and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// ClientConfig carries provider settings. The defaults match the OpenRouter
// deployment the service was built against.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is a Completer backed by an OpenAI-compatible completions API.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: timeout,
	}
}

// Complete sends one completion request. Sampling parameters are fixed to
// the values the product was tuned with: temperature 0, top_p 0.7, 4000
// max tokens. Every call carries a timeout so a hung provider cannot block
// a request forever.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
		TopP:        0.7,
		MaxTokens:   4000,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: provider returned no choices", ErrProvider)
	}
	return resp.Choices[0].Message.Content, nil
}
