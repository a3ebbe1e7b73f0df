// Package providers wraps the AI services that answer market-research prompts.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/models"
)

// AIProvider answers a single prompt
type AIProvider interface {
	Name() string
	Ask(ctx context.Context, prompt string) (*Completion, error)
}

// Completion is the text returned by a provider plus usage metadata
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// New selects the configured provider
func New(cfg *config.Config) (AIProvider, error) {
	switch strings.ToLower(cfg.AIProvider) {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.AIModel), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AIModel), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.AIProvider)
	}
}

// Classify maps a provider call failure to ErrProviderTimeout,
// ErrEmptyResponse or ErrProviderError. callErr is the context error of the
// call, if any.
func Classify(err error, callErr error) error {
	switch {
	case errors.Is(err, models.ErrEmptyResponse):
		return models.ErrEmptyResponse
	case errors.Is(err, models.ErrProviderTimeout),
		errors.Is(callErr, context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		return models.ErrProviderTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrProviderTimeout
	}
	return models.ErrProviderError
}
