package agent

import (
	"context"
	"fmt"

	"github.com/rahul/cookframe/internal/imaging"
	"github.com/rahul/cookframe/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewChatModel builds the text model for a configured provider.
func NewChatModel(name string, p config.ProviderConfig) (llms.Model, error) {
	switch name {
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(p.Model)}
		if p.APIKey != "" {
			opts = append(opts, anthropic.WithToken(p.APIKey))
		}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		return anthropic.New(opts...)
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not supported for text agents", name)
	}
}

// CallOptions turns a role's generation settings into call options.
func CallOptions(a config.AgentConfig) []llms.CallOption {
	var opts []llms.CallOption
	if a.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(a.MaxTokens))
	}
	if a.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(a.Temperature))
	}
	return opts
}

// NewRoleAgent builds an Agent for a role from configuration.
func NewRoleAgent(cfg *config.Config, role string, a config.AgentConfig, prompts *PromptManager) (*Agent, error) {
	name, p, err := cfg.ResolveAgent(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	model, err := NewChatModel(name, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	system, err := prompts.Get(role)
	if err != nil {
		return nil, err
	}
	ag := NewAgent(role, system, model, CallOptions(a)...)
	ag.ModelName = p.Model
	return ag, nil
}

// NewImageBackend builds the image backend selected by image.provider.
func NewImageBackend(ctx context.Context, cfg *config.Config) (imaging.Backend, error) {
	p := cfg.ImageProvider()
	switch cfg.Image.Provider {
	case "gemini":
		client, err := imaging.NewGeminiClient(ctx, p.APIKey, p.BaseURL, nil)
		if err != nil {
			return nil, err
		}
		return imaging.NewGeminiBackend(client, p.Model), nil
	case "openrouter":
		if p.APIKey == "" {
			return nil, fmt.Errorf("openrouter api key is not set")
		}
		var opts []imaging.OpenRouterOption
		if p.BaseURL != "" {
			opts = append(opts, imaging.WithBaseURL(p.BaseURL))
		}
		return imaging.NewOpenRouterBackend(p.APIKey, p.Model, opts...), nil
	default:
		return nil, fmt.Errorf("image provider %s not supported", cfg.Image.Provider)
	}
}
