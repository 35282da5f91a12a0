package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/folio/internal/llm"
	"github.com/kalambet/folio/internal/proxy"
)

func TestDetect(t *testing.T) {
	ctx := context.Background()
	keys := Config{OpenRouterKey: "or", OpenAIKey: "oa", GeminiKey: "gm", OllamaBaseURL: "http://localhost:11434"}

	tests := []struct {
		provider  string
		wantName  string
		wantModel string
		check     func(*Backend) bool
	}{
		{"", ProviderOpenRouter, proxy.DefaultModel, func(b *Backend) bool { _, ok := b.Completer.(*proxy.Client); return ok }},
		{"OpenRouter", ProviderOpenRouter, proxy.DefaultModel, func(b *Backend) bool { _, ok := b.Completer.(*proxy.Client); return ok }},
		{"openai", ProviderOpenAI, llm.DefaultOpenAIModel, func(b *Backend) bool { _, ok := b.Completer.(*llm.OpenAI); return ok }},
		{"gemini", ProviderGemini, llm.DefaultGeminiModel, func(b *Backend) bool { _, ok := b.Completer.(*llm.Gemini); return ok }},
		{"ollama", ProviderOllama, DefaultOllamaModel, func(b *Backend) bool { return b.Local != nil && b.Completer != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.wantName+"/"+tt.provider, func(t *testing.T) {
			cfg := keys
			cfg.Provider = tt.provider
			b, err := Detect(ctx, cfg)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if b.Provider != tt.wantName || b.Model != tt.wantModel {
				t.Errorf("backend = %s/%s, want %s/%s", b.Provider, b.Model, tt.wantName, tt.wantModel)
			}
			if !tt.check(b) {
				t.Errorf("unexpected completer %T", b.Completer)
			}
		})
	}
}

func TestDetect_ModelOverride(t *testing.T) {
	b, err := Detect(context.Background(), Config{Provider: "openai", Model: "gpt-4o", OpenAIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if b.Model != "gpt-4o" {
		t.Errorf("Model = %q", b.Model)
	}
}

func TestDetect_MissingKey(t *testing.T) {
	for _, p := range []string{"openrouter", "openai", "gemini"} {
		if _, err := Detect(context.Background(), Config{Provider: p}); !errors.Is(err, ErrMissingKey) {
			t.Errorf("Detect(%s) err = %v, want ErrMissingKey", p, err)
		}
	}
}

func TestDetect_UnknownProvider(t *testing.T) {
	if _, err := Detect(context.Background(), Config{Provider: "mlx"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
