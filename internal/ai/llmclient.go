// Package ai talks to an OpenAI-compatible chat completion endpoint.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// Completer turns a prompt into completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type LLMClient struct {
	client       *openai.Client
	model        string
	instructions string
}

// NewLLMClient builds a client for the endpoint at url. An empty apiKey
// means unauthenticated access.
func NewLLMClient(url, apiKey, model, instructions string) *LLMClient {
	options := []option.RequestOption{option.WithBaseURL(url)}

	if apiKey == "" {
		log.Info().Msg("[ai] no API key configured, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &LLMClient{client: &client, model: model, instructions: instructions}
}

func (llm *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := llm.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(llm.instructions),
			openai.UserMessage(prompt),
		},
		Model: llm.model,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("client didn't return any content choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// ErrOffline is returned by Offline for every prompt.
var ErrOffline = errors.New("ai: no completion endpoint configured")

// Offline is used when no endpoint is configured.
type Offline struct{}

func (Offline) Complete(context.Context, string) (string, error) { return "", ErrOffline }

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
