package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a helpful assistant that provides accurate, comprehensive answers to questions. " +
	"When recommending products, services or companies, name them explicitly."

// OpenAIProvider answers prompts with the chat completions API
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

var _ AIProvider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Ask(ctx context.Context, prompt string) (*Completion, error) {
	response, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(p.model),
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(2000),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: openai returned status %d: %v", models.ErrProviderError, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices returned", models.ErrEmptyResponse)
	}

	text := strings.TrimSpace(response.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message content", models.ErrEmptyResponse)
	}

	return &Completion{
		Text:         text,
		Model:        p.model,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
	}, nil
}
