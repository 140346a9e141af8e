// Package llm wraps an OpenAI-compatible chat API with the request
// shapes the course generator needs: structured JSON generation, a
// stateful intake conversation, and retry with classified errors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client. An empty baseURL uses the provider
// default.
func New(baseURL, apiKey, modelName string) (*Client, error) {
	if apiKey == "" {
		return nil, &Error{Kind: KindMissingCredentials, Err: fmt.Errorf("no API key configured")}
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}, nil
}

// GenerateJSON sends a single-turn request with a system instruction and
// returns the raw response content. The provider is asked for a JSON
// object response; the caller is responsible for sanitizing and decoding.
func (c *Client) GenerateJSON(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", Classify(fmt.Errorf("LLM API call: %w", err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindEmptyResponse, Err: fmt.Errorf("LLM returned no content")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// Message is one turn of the intake conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat sends the full intake conversation and returns the assistant's
// next turn. Unlike GenerateJSON, the response is free-form text.
func (c *Client) Chat(ctx context.Context, system string, history []Message, temperature float32) (string, error) {
	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem, Content: system,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: temperature,
	})
	if err != nil {
		return "", Classify(fmt.Errorf("LLM chat call: %w", err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindEmptyResponse, Err: fmt.Errorf("LLM returned no content")}
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream streams the assistant's next turn, invoking emit for each
// content delta. The full concatenated reply is returned once the stream
// ends.
func (c *Client) ChatStream(ctx context.Context, system string, history []Message, temperature float32, emit func(delta string)) (string, error) {
	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem, Content: system,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return "", Classify(fmt.Errorf("LLM chat stream: %w", err))
	}
	defer stream.Close()

	var full strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", Classify(fmt.Errorf("LLM stream recv: %w", err))
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if emit != nil {
			emit(delta)
		}
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", &Error{Kind: KindEmptyResponse, Err: fmt.Errorf("LLM stream carried no content")}
	}
	return full.String(), nil
}

// Ping verifies the API is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	if err != nil {
		return Classify(fmt.Errorf("LLM ping: %w", err))
	}
	return nil
}
