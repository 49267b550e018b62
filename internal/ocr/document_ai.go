package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	documentai "google.golang.org/api/documentai/v1"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/docintake/constants"
)

// DocumentAI sends the raw document to a Google Document AI OCR processor.
type DocumentAI struct {
	svc       *documentai.Service
	processor string // projects/*/locations/*/processors/*
	logger    *slog.Logger
}

func NewDocumentAI(ctx context.Context, processor, endpoint string, logger *slog.Logger) (*DocumentAI, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if processor == "" {
		return nil, errors.New("document_ai: processor name is required")
	}
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := documentai.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai.NewService: %w", err)
	}
	return &DocumentAI{svc: svc, processor: processor, logger: logger}, nil
}

func (d *DocumentAI) Name() string { return "document_ai" }

func (d *DocumentAI) Supports(mime string) bool { return constants.IsAllowedMIME(mime) }

func (d *DocumentAI) Extract(ctx context.Context, data []byte, mime string) (Recovery, error) {
	req := &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		RawDocument: &documentai.GoogleCloudDocumentaiV1RawDocument{
			Content:  base64.StdEncoding.EncodeToString(data),
			MimeType: constants.NormalizeMIME(mime),
		},
		SkipHumanReview: true,
	}
	resp, err := d.svc.Projects.Locations.Processors.Process(d.processor, req).Context(ctx).Do()
	if err != nil {
		return Recovery{Confidence: NoConfidence}, fmt.Errorf("documentai process: %w", err)
	}
	if resp.Document == nil {
		return Recovery{Confidence: NoConfidence}, errors.New("documentai returned no document")
	}
	return Recovery{
		Text:       resp.Document.Text,
		Pages:      len(resp.Document.Pages),
		Confidence: pageConfidence(resp.Document.Pages),
	}, nil
}

func pageConfidence(pages []*documentai.GoogleCloudDocumentaiV1DocumentPage) float64 {
	var sum float64
	var n int
	for _, p := range pages {
		if p == nil || p.Layout == nil || p.Layout.Confidence <= 0 {
			continue
		}
		sum += p.Layout.Confidence
		n++
	}
	if n == 0 {
		return NoConfidence
	}
	return sum / float64(n)
}
