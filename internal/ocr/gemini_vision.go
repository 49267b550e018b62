package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/joseph-ayodele/docintake/constants"
)

const transcribePrompt = "Transcribe all legible text in this document exactly as written, page by page. " +
	"Keep line breaks. Do not summarise, translate or add commentary. " +
	"If no text is legible, reply with an empty message."

// GeminiVision transcribes page images and PDFs with a Gemini multimodal model.
type GeminiVision struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGeminiVision(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiVision, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == "" {
		return nil, errors.New("gemini_vision: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &GeminiVision{client: client, model: model, logger: logger}, nil
}

func (g *GeminiVision) Name() string { return "gemini_vision" }

func (g *GeminiVision) Supports(mime string) bool { return constants.IsAllowedMIME(mime) }

func (g *GeminiVision) Extract(ctx context.Context, data []byte, mime string) (Recovery, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(data, constants.NormalizeMIME(mime)),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return Recovery{Confidence: NoConfidence}, fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	g.logger.Debug("ocr.gemini_vision.response", "model", g.model, "chars", len(text))
	return Recovery{Text: text, Confidence: NoConfidence}, nil
}
