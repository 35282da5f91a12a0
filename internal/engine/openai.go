package engine

import "github.com/openai/openai-go/v3/option"

func openAIOptions(cfg Config) []option.RequestOption {
	if cfg.BaseURL == "" {
		return nil
	}
	return []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
}
