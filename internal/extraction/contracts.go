// Package extraction classifies recovered document text and extracts structured fields
// under a closed JSON schema.
package extraction

import "context"

// Input is what the EXTRACT stage knows about a document.
type Input struct {
	Text      string
	Filename  string
	PageCount int
	OCRNeeded bool
}

// Request is handed to each field extractor. Text is already windowed.
type Request struct {
	Text      string
	Filename  string
	PageCount int
	Truncated bool
}

// FieldExtractor turns document text into a raw JSON object shaped like ExtractionResult.
// The engine owns validation, so implementations return whatever the backend produced.
type FieldExtractor interface {
	Name() string
	ExtractFields(ctx context.Context, req Request) ([]byte, error)
}

// ExtractorAttempt records one extractor call.
type ExtractorAttempt struct {
	Extractor string `json:"extractor"`
	Outcome   string `json:"outcome"` // ok | error | invalid
	Reason    string `json:"reason,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Provenance explains where a result came from.
type Provenance struct {
	Extractor   string             `json:"extractor,omitempty"`
	Defaulted   bool               `json:"defaulted"`
	Sanitized   []string           `json:"sanitized,omitempty"`
	Truncated   bool               `json:"truncated"`
	InputTokens int                `json:"input_tokens"`
	Attempts    []ExtractorAttempt `json:"attempts,omitempty"`
}
