// Package engine selects and prepares the model backend that generates edit
// plans.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/folio/internal/llm"
	"github.com/kalambet/folio/internal/ollama"
	"github.com/kalambet/folio/internal/proxy"
)

// Supported providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
)

// DefaultOllamaModel is used for the ollama provider when no model is configured.
const DefaultOllamaModel = "llama3.2"

// ErrMissingKey is returned when the selected provider needs an API key that
// is not configured.
var ErrMissingKey = errors.New("missing API key")

// Local is a self-hosted backend whose models may need pulling before use.
type Local interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
}

// Config holds parameters for backend detection.
type Config struct {
	Provider string
	Model    string
	// BaseURL overrides the hosted provider endpoint.
	BaseURL       string
	OllamaBaseURL string

	OpenRouterKey string
	OpenAIKey     string
	GeminiKey     string
}

// Backend is the detected model backend.
type Backend struct {
	Provider  string
	Model     string
	Completer llm.Completer
	// Local is set only for self-hosted providers.
	Local Local
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{ProviderOpenRouter, ProviderOpenAI, ProviderGemini, ProviderOllama}
}

// Detect builds the backend named by cfg.Provider. An empty provider means
// OpenRouter.
func Detect(ctx context.Context, cfg Config) (*Backend, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenRouter
	}

	b := &Backend{Provider: provider, Model: cfg.Model}
	switch provider {
	case ProviderOpenRouter:
		if cfg.OpenRouterKey == "" {
			return nil, fmt.Errorf("%s: %w (set FOLIO_OPENROUTER_API_KEY)", provider, ErrMissingKey)
		}
		var c *proxy.Client
		if cfg.BaseURL != "" {
			c = proxy.NewClientWithBaseURL(cfg.OpenRouterKey, cfg.Model, cfg.BaseURL)
		} else {
			c = proxy.NewClient(cfg.OpenRouterKey, cfg.Model)
		}
		if b.Model == "" {
			b.Model = proxy.DefaultModel
		}
		b.Completer = c

	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("%s: %w (set FOLIO_OPENAI_API_KEY)", provider, ErrMissingKey)
		}
		if b.Model == "" {
			b.Model = llm.DefaultOpenAIModel
		}
		b.Completer = llm.NewOpenAI(cfg.OpenAIKey, b.Model, openAIOptions(cfg)...)

	case ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("%s: %w (set FOLIO_GEMINI_API_KEY)", provider, ErrMissingKey)
		}
		if b.Model == "" {
			b.Model = llm.DefaultGeminiModel
		}
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: cfg.GeminiKey, Model: b.Model, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		b.Completer = g

	case ProviderOllama:
		if b.Model == "" {
			b.Model = DefaultOllamaModel
		}
		c := ollama.New(cfg.OllamaBaseURL)
		b.Completer = c.Completer(b.Model)
		b.Local = c

	default:
		return nil, fmt.Errorf("unknown provider %q (want one of %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	return b, nil
}
