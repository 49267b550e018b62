package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"

	"github.com/joseph-ayodele/docintake/constants"
)

// OpenAIVision transcribes photographed documents with a vision-capable chat model.
// PDFs are left to the other strategies.
type OpenAIVision struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIVision(apiKey, baseURL, model string, logger *slog.Logger) (*OpenAIVision, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == "" {
		return nil, errors.New("openai_vision: api key is required")
	}
	opts := []oaioption.RequestOption{oaioption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, oaioption.WithBaseURL(baseURL))
	}
	return &OpenAIVision{client: openai.NewClient(opts...), model: model, logger: logger}, nil
}

func (o *OpenAIVision) Name() string { return "openai_vision" }

func (o *OpenAIVision) Supports(mime string) bool { return constants.IsImage(mime) }

func (o *OpenAIVision) Extract(ctx context.Context, data []byte, mime string) (Recovery, error) {
	dataURL := "data:" + constants.NormalizeMIME(mime) + ";base64," + base64.StdEncoding.EncodeToString(data)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(transcribePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(0),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Recovery{Confidence: NoConfidence}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Recovery{Confidence: NoConfidence}, errors.New("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.logger.Debug("ocr.openai_vision.response", "model", o.model, "chars", len(text))
	return Recovery{Text: text, Pages: 1, Confidence: NoConfidence}, nil
}
