// Package gemini extracts document fields with a Gemini model.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/docintake/internal/extraction"
)

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	client *genai.Client
	log    *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{cfg: cfg, client: client, log: logger}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) ExtractFields(ctx context.Context, req extraction.Request) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	schema, err := json.Marshal(extraction.BuildExtractionJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	c.log.Info("llm.extract.start", "req_id", rid, "model", c.cfg.Model, "text_len", len(req.Text), "truncated", req.Truncated)

	contents := []*genai.Content{
		genai.NewContentFromText(extraction.BuildUserPrompt(req)+"\n\nJSON Schema:\n"+string(schema), genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(extraction.BuildSystemPrompt(), genai.RoleUser),
	})
	if err != nil {
		c.log.Error("llm.extract.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return nil, errors.New("empty gemini response")
	}
	c.log.Info("llm.extract.ok", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
	return []byte(extraction.CleanJSON(content)), nil
}
