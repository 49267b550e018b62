package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docintake/internal/common"
)

// Known strategy names, in the default order.
var StrategyNames = []string{"text_layer", "tesseract", "gemini_vision", "document_ai", "openai_vision", "remote_ocr"}

func localConfig(cfg common.OCRConfig) Config {
	return Config{
		Pdftotext:           cfg.Pdftotext,
		Pdftoppm:            cfg.Pdftoppm,
		Tesseract:           cfg.Tesseract,
		TesseractLang:       cfg.TesseractLang,
		TessdataDir:         cfg.TessdataDir,
		DPI:                 cfg.DPI,
		MaxPages:            cfg.MaxPages,
		EnableTSVConfidence: true,
		PSM:                 6,
	}
}

// BuildStrategies resolves the configured order into strategies. An unknown name is an
// error; a known cloud strategy without credentials is left out with a warning so local
// setups keep working with the default order.
func BuildStrategies(ctx context.Context, cfg common.OCRConfig, llm common.LLMConfig, runner Runner, logger *slog.Logger) ([]Strategy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	local := localConfig(cfg)

	var out []Strategy
	for _, name := range cfg.StrategyOrder {
		var (
			s   Strategy
			err error
		)
		slogger := logger.With("strategy", name)
		switch name {
		case "text_layer":
			s = NewTextLayer(local, runner, slogger)
		case "tesseract":
			s = NewTesseract(local, runner, slogger)
		case "gemini_vision":
			if cfg.GeminiAPIKey == "" {
				logger.Warn("ocr.strategy.disabled", "strategy", name, "reason", "GEMINI_API_KEY not set")
				continue
			}
			s, err = NewGeminiVision(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, slogger)
		case "document_ai":
			if cfg.DocumentAIProcessor == "" {
				logger.Warn("ocr.strategy.disabled", "strategy", name, "reason", "DOCUMENTAI_PROCESSOR not set")
				continue
			}
			s, err = NewDocumentAI(ctx, cfg.DocumentAIProcessor, cfg.DocumentAIEndpoint, slogger)
		case "openai_vision":
			if llm.APIKey == "" {
				logger.Warn("ocr.strategy.disabled", "strategy", name, "reason", "OPENAI_API_KEY not set")
				continue
			}
			s, err = NewOpenAIVision(llm.APIKey, llm.BaseURL, cfg.OpenAIVisionModel, slogger)
		case "remote_ocr":
			if cfg.RemoteURL == "" {
				logger.Warn("ocr.strategy.disabled", "strategy", name, "reason", "OCR_SERVICE_URL not set")
				continue
			}
			s, err = NewRemoteOCR(cfg.RemoteURL, cfg.RemoteAPIKey, cfg.StrategyTimeout, slogger)
		default:
			return nil, fmt.Errorf("unknown ocr strategy %q (known: %v)", name, StrategyNames)
		}
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable ocr strategy in %v", cfg.StrategyOrder)
	}
	return out, nil
}

// NewFromConfig builds the orchestrator for the configured chain.
func NewFromConfig(ctx context.Context, cfg common.OCRConfig, llm common.LLMConfig, logger *slog.Logger) (*Orchestrator, error) {
	strategies, err := BuildStrategies(ctx, cfg, llm, nil, logger)
	if err != nil {
		return nil, err
	}
	return NewOrchestrator(strategies, Options{
		StrategyTimeout: cfg.StrategyTimeout,
		MinChars:        cfg.MinChars,
		MinQuality:      cfg.MinQuality,
		CacheTTL:        cfg.CacheTTL,
	}, logger)
}
