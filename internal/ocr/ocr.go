// Package ocr recovers text from uploaded documents through an ordered chain of strategies.
package ocr

import (
	"context"
	"time"

	"github.com/joseph-ayodele/docintake/internal/entity"
)

// NoConfidence marks a Recovery whose backend reports no confidence of its own.
const NoConfidence = -1.0

// Recovery is the raw output of a single strategy.
type Recovery struct {
	Text       string
	Confidence float64 // 0..1, or NoConfidence
	Pages      int
	Warnings   []string
}

// Strategy is one OCR backend.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, data []byte, mime string) (Recovery, error)
}

// MIMESupporter is implemented by strategies that only handle some content types.
type MIMESupporter interface {
	Supports(mime string) bool
}

// Prober is implemented by strategies that can report readiness cheaply.
type Prober interface {
	Probe(ctx context.Context) error
}

// Result is what the orchestrator hands to the OCR stage.
type Result struct {
	Text      string
	Quality   float64
	Level     QualityLevel
	Strategy  string
	Pages     int
	OCRNeeded bool
	Degraded  bool
	Cached    bool
	Attempts  []entity.OCRAttempt
	Warnings  []string
	Duration  time.Duration
}

// Config holds the knobs for the local binaries and the cloud backends.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // 0 = no limit

	EnableTSVConfidence bool
	PSM                 int // e.g., 6 is good for uniform block of text
	OEM                 int // 1 = LSTM; leave 0 to use default
}

func (c Config) withDefaults() Config {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}
