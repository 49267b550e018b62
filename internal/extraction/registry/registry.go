// Package registry builds the configured extraction chain.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/extraction/gemini"
	"github.com/joseph-ayodele/docintake/internal/extraction/openai"
)

// Names of the known field extractors.
var Names = []string{"openai", "gemini", "keyword"}

// BuildExtractors resolves cfg.Extractors in order. The keyword extractor is appended when
// the list does not already end with it, so the chain always has an offline last resort.
func BuildExtractors(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) ([]extraction.FieldExtractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []extraction.FieldExtractor
	seen := map[string]bool{}
	for _, name := range cfg.Extractors {
		if seen[name] {
			return nil, fmt.Errorf("extractor %q listed twice", name)
		}
		seen[name] = true
		switch name {
		case "openai":
			c, err := openai.NewClient(openai.Config{
				APIKey:      cfg.APIKey,
				BaseURL:     cfg.BaseURL,
				Model:       cfg.Model,
				Temperature: cfg.Temperature,
				Timeout:     cfg.Timeout,
			}, logger.With("extractor", name))
			if err != nil {
				return nil, fmt.Errorf("build openai: %w", err)
			}
			out = append(out, c)
		case "gemini":
			c, err := gemini.NewClient(ctx, gemini.Config{
				APIKey:      cfg.GeminiAPIKey,
				Model:       cfg.GeminiModel,
				Temperature: cfg.Temperature,
				Timeout:     cfg.Timeout,
			}, logger.With("extractor", name))
			if err != nil {
				return nil, fmt.Errorf("build gemini: %w", err)
			}
			out = append(out, c)
		case "keyword":
			out = append(out, extraction.NewKeywordExtractor())
		default:
			return nil, fmt.Errorf("unknown extractor %q (known: %v)", name, Names)
		}
	}
	if !seen["keyword"] {
		out = append(out, extraction.NewKeywordExtractor())
	}
	return out, nil
}

// NewEngine builds the engine for the configured chain.
func NewEngine(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (*extraction.Engine, error) {
	extractors, err := BuildExtractors(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return extraction.NewEngine(extractors, extraction.Options{
		Window:          extraction.Window{MaxChars: cfg.MaxChars, MaxTokens: cfg.MaxTokens},
		LenientOptional: cfg.LenientOptional,
	}, logger), nil
}
