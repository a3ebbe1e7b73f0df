package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/azure/brand-visibility-bot/internal/models"
)

// AnthropicProvider answers prompts with the messages API
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

var _ AIProvider = (*AnthropicProvider)(nil)

func NewAnthropicProvider(apiKey, model string, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{
		client: &client,
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Ask(ctx context.Context, prompt string) (*Completion, error) {
	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 2000,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: prompt},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
		Temperature: anthropic.Float(0.7),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: anthropic returned status %d: %v", models.ErrProviderError, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("message request failed: %w", err)
	}

	text := strings.TrimSpace(extractText(response))
	if text == "" {
		return nil, fmt.Errorf("%w: no text blocks in response", models.ErrEmptyResponse)
	}

	return &Completion{
		Text:         text,
		Model:        p.model,
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}, nil
}

func extractText(response *anthropic.Message) string {
	var parts []string
	for _, block := range response.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, variant.Text)
		}
	}
	return strings.Join(parts, "")
}
