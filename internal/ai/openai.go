package ai

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/auswanderer-plattform/backend/internal/models"
)

// OpenAIAdapter talks to an OpenAI compatible Chat Completions API
type OpenAIAdapter struct {
	*base
	client openai.Client
}

// NewOpenAIAdapter creates an OpenAI adapter. SDK retries are disabled.
func NewOpenAIAdapter(opts Options) *OpenAIAdapter {
	return newChatCompletionsAdapter(models.ProviderOpenAI, opts)
}

func newChatCompletionsAdapter(provider models.Provider, opts Options) *OpenAIAdapter {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAIAdapter{
		base:   newBase(provider, opts),
		client: openai.NewClient(clientOpts...),
	}
}

// Chat sends a chat completion request
func (a *OpenAIAdapter) Chat(ctx context.Context, req Request) (*Response, error) {
	return a.chat(ctx, func(ctx context.Context) (*Response, error) {
		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(a.model),
			Messages:    chatCompletionMessages(req.System, req.Messages),
			MaxTokens:   openai.Int(int64(a.maxTokens(req))),
			Temperature: openai.Float(a.temperature(req)),
		}
		if a.settings.TopP != nil {
			params.TopP = openai.Float(*a.settings.TopP)
		}
		if len(a.settings.StopSequences) > 0 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: a.settings.StopSequences}
		}

		resp, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, a.vendorError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, ErrEmptyResponse
		}

		choice := resp.Choices[0]
		finish := FinishStop
		if choice.FinishReason == "length" {
			finish = FinishLength
		}

		return &Response{
			Content:      choice.Message.Content,
			Usage:        a.usage(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens), int(resp.Usage.TotalTokens)),
			Model:        resp.Model,
			Provider:     a.provider,
			RequestID:    resp.ID,
			FinishReason: finish,
		}, nil
	})
}

// HealthCheck sends a 10 token completion. This spends tokens.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) bool {
	return a.healthCheck(ctx, func(ctx context.Context) error {
		_, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(a.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage("Reply with OK"),
				openai.UserMessage("Test"),
			},
			MaxTokens: openai.Int(healthCheckMaxTokens),
		})
		return err
	})
}

func (a *OpenAIAdapter) vendorError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &VendorError{Provider: a.provider, StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	return err
}

func chatCompletionMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			out = append(out, openai.AssistantMessage(m.Content))
		} else {
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
