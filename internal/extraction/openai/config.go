package openai

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
)

// Config for the OpenAI client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // per-request timeout
}

type Client struct {
	cfg    Config
	client openai.Client
	log    *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []oaioption.RequestOption{
		oaioption.WithAPIKey(cfg.APIKey),
		oaioption.WithRequestTimeout(cfg.Timeout),
		oaioption.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, oaioption.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		log:    logger,
	}, nil
}

func (c *Client) Name() string { return "openai" }
