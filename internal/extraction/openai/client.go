package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"

	"github.com/joseph-ayodele/docintake/internal/extraction"
)

// ExtractFields implements extraction.FieldExtractor with a structured-output chat completion.
// Validation and sanitising stay with the engine.
func (c *Client) ExtractFields(ctx context.Context, req extraction.Request) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"truncated", req.Truncated,
	)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extraction.BuildSystemPrompt()),
			openai.UserMessage(extraction.BuildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."),
		},
		Temperature: openai.Float(float64(c.cfg.Temperature)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "document_extraction",
					Schema: extraction.BuildExtractionJSONSchema(),
					Strict: openai.Bool(false),
				},
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.log.Error("llm.extract.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, errors.New("no choices in openai response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("empty openai response")
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(extraction.CleanJSON(content)), nil
}
