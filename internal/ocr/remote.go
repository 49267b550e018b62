package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

// RemoteOCR posts the document to an OCR microservice that answers with
// {"text": "...", "confidence": 0.93, "pages": 2}.
type RemoteOCR struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

type remoteOCRRequest struct {
	ContentBase64 string `json:"content_base64"`
	MIMEType      string `json:"mime_type"`
}

type remoteOCRResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Pages      int      `json:"pages"`
}

func NewRemoteOCR(url, token string, timeout time.Duration, logger *slog.Logger) (*RemoteOCR, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return nil, errors.New("remote_ocr: service url is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteOCR{url: url, token: token, client: &http.Client{Timeout: timeout}, logger: logger}, nil
}

func (r *RemoteOCR) Name() string { return "remote_ocr" }

func (r *RemoteOCR) Extract(ctx context.Context, data []byte, mime string) (Recovery, error) {
	headers := map[string]string{}
	if r.token != "" {
		headers["Authorization"] = "Bearer " + r.token
	}
	body := remoteOCRRequest{
		ContentBase64: base64.StdEncoding.EncodeToString(data),
		MIMEType:      constants.NormalizeMIME(mime),
	}
	raw, status, err := utils.SendJSON(ctx, r.client, r.url, body, headers, r.logger)
	if err != nil {
		return Recovery{Confidence: NoConfidence}, fmt.Errorf("remote ocr (status %d): %w", status, err)
	}
	var out remoteOCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Recovery{Confidence: NoConfidence}, fmt.Errorf("decode remote ocr response: %w", err)
	}
	conf := NoConfidence
	if out.Confidence != nil {
		conf = *out.Confidence
		// some services report percentages
		if conf > 1 {
			conf /= 100
		}
	}
	return Recovery{Text: out.Text, Confidence: conf, Pages: out.Pages}, nil
}
