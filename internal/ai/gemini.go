package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/auswanderer-plattform/backend/internal/models"
)

// GeminiAdapter talks to the Gemini generateContent API
type GeminiAdapter struct {
	*base
	client *genai.Client
}

// NewGeminiAdapter creates a Gemini adapter
func NewGeminiAdapter(ctx context.Context, opts Options) (*GeminiAdapter, error) {
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAdapter{
		base:   newBase(models.ProviderGemini, opts),
		client: client,
	}, nil
}

// Chat sends a generateContent request
func (a *GeminiAdapter) Chat(ctx context.Context, req Request) (*Response, error) {
	return a.chat(ctx, func(ctx context.Context) (*Response, error) {
		config := &genai.GenerateContentConfig{
			MaxOutputTokens: int32(a.maxTokens(req)),
			Temperature:     genai.Ptr(float32(a.temperature(req))),
		}
		if a.settings.TopP != nil {
			config.TopP = genai.Ptr(float32(*a.settings.TopP))
		}
		if len(a.settings.StopSequences) > 0 {
			config.StopSequences = a.settings.StopSequences
		}
		if req.System != "" {
			config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}

		resp, err := a.client.Models.GenerateContent(ctx, a.model, geminiContents(req.Messages), config)
		if err != nil {
			return nil, a.vendorError(err)
		}

		var inputTokens, outputTokens, totalTokens int
		if md := resp.UsageMetadata; md != nil {
			inputTokens = int(md.PromptTokenCount)
			outputTokens = int(md.CandidatesTokenCount)
			totalTokens = int(md.TotalTokenCount)
		}

		finish := FinishStop
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
			finish = FinishLength
		}

		return &Response{
			Content:      resp.Text(),
			Usage:        a.usage(inputTokens, outputTokens, totalTokens),
			Model:        a.model,
			Provider:     a.provider,
			RequestID:    resp.ResponseID,
			FinishReason: finish,
		}, nil
	})
}

// HealthCheck sends a 10 token request. This spends tokens.
func (a *GeminiAdapter) HealthCheck(ctx context.Context) bool {
	return a.healthCheck(ctx, func(ctx context.Context) error {
		_, err := a.client.Models.GenerateContent(ctx, a.model,
			[]*genai.Content{genai.NewContentFromText("Hi", genai.RoleUser)},
			&genai.GenerateContentConfig{MaxOutputTokens: healthCheckMaxTokens},
		)
		return err
	})
}

func (a *GeminiAdapter) vendorError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &VendorError{Provider: a.provider, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &VendorError{Provider: a.provider, StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return err
}

func geminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return out
}
