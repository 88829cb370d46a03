package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/justsurfingit/inbox-job-tracker/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/googleai/vertex"
	"github.com/tmc/langchaingo/llms/openai"
)

//go:generate mockgen -destination=mocks/mock_completer.go -package=mocks github.com/justsurfingit/inbox-job-tracker/internal/services Completer

// Completer is the hosted text-completion capability: prompt in, free-form text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMService adapts a langchaingo model to Completer.
type LLMService struct {
	Client llms.Model
}

// NewLLMService builds the client for the configured provider.
func NewLLMService(ctx context.Context, cfg *config.Config) (*LLMService, error) {
	if cfg.LLMAPIKey == "" && cfg.LLMProvider != config.ProviderVertex {
		return nil, errors.New("no API key configured for LLM provider " + cfg.LLMProvider + " (set GEMINI_API_KEY or OPENAI_API_KEY)")
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.LLMProvider {
	case config.ProviderGoogleAI:
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.LLMAPIKey),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
	case config.ProviderVertex:
		// Vertex authenticates with application default credentials.
		model, err = vertex.New(ctx,
			googleai.WithCloudProject(cfg.VertexProject),
			googleai.WithCloudLocation(cfg.VertexLocation),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
	case config.ProviderOpenAI:
		model, err = openai.New(
			openai.WithToken(cfg.LLMAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLMProvider, err)
	}
	return &LLMService{Client: model}, nil
}

func (s *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s.Client, prompt, llms.WithTemperature(0))
}
