package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/auswanderer-plattform/backend/internal/models"
)

// ClaudeAdapter talks to the Anthropic Messages API
type ClaudeAdapter struct {
	*base
	client anthropic.Client
}

// NewClaudeAdapter creates a Claude adapter. SDK retries are disabled.
func NewClaudeAdapter(opts Options) *ClaudeAdapter {
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

	return &ClaudeAdapter{
		base:   newBase(models.ProviderClaude, opts),
		client: anthropic.NewClient(clientOpts...),
	}
}

// Chat sends a Messages API request
func (a *ClaudeAdapter) Chat(ctx context.Context, req Request) (*Response, error) {
	return a.chat(ctx, func(ctx context.Context) (*Response, error) {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(a.model),
			MaxTokens:   int64(a.maxTokens(req)),
			Temperature: anthropic.Float(a.temperature(req)),
			Messages:    claudeMessages(req.Messages),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}
		if a.settings.TopP != nil {
			params.TopP = anthropic.Float(*a.settings.TopP)
		}
		if len(a.settings.StopSequences) > 0 {
			params.StopSequences = a.settings.StopSequences
		}

		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, a.vendorError(err)
		}

		var content strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				content.WriteString(block.Text)
			}
		}

		finish := FinishStop
		if msg.StopReason == anthropic.StopReasonMaxTokens {
			finish = FinishLength
		}

		return &Response{
			Content:      content.String(),
			Usage:        a.usage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), 0),
			Model:        string(msg.Model),
			Provider:     a.provider,
			RequestID:    msg.ID,
			FinishReason: finish,
		}, nil
	})
}

// HealthCheck sends a 10 token message. This spends tokens.
func (a *ClaudeAdapter) HealthCheck(ctx context.Context) bool {
	return a.healthCheck(ctx, func(ctx context.Context) error {
		_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: healthCheckMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock("Hi")),
			},
		})
		return err
	})
}

func (a *ClaudeAdapter) vendorError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &VendorError{Provider: a.provider, StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	return err
}

func claudeMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
