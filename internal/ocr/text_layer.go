package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/joseph-ayodele/docintake/constants"
)

// TextLayer reads the embedded text of a digital PDF. The in-process parser runs
// first; pdftotext covers files it cannot decode.
type TextLayer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTextLayer(cfg Config, runner Runner, logger *slog.Logger) *TextLayer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &TextLayer{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (t *TextLayer) Name() string { return "text_layer" }

func (t *TextLayer) Supports(mime string) bool {
	return constants.NormalizeMIME(mime) == constants.MIMEPDF
}

func (t *TextLayer) Extract(ctx context.Context, data []byte, _ string) (Recovery, error) {
	text, pages, err := t.parse(ctx, data)
	if err == nil && strings.TrimSpace(text) != "" {
		return Recovery{Text: text, Pages: pages, Confidence: NoConfidence}, nil
	}
	var warns []string
	if err != nil {
		warns = append(warns, "in-process parse: "+err.Error())
		t.logger.Debug("ocr.text_layer.parse_failed", "error", err)
	}

	text, pages, errb, err := t.pdfToText(ctx, data)
	if err != nil {
		warns = append(warns, truncate(string(errb), 512))
		return Recovery{Warnings: warns, Confidence: NoConfidence}, fmt.Errorf("pdftotext: %w", err)
	}
	return Recovery{Text: text, Pages: pages, Warnings: warns, Confidence: NoConfidence}, nil
}

// parse walks the pages with dslipak/pdf, which panics on some malformed streams.
func (t *TextLayer) parse(ctx context.Context, data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}
	pages = r.NumPage()
	limit := pages
	if t.cfg.MaxPages > 0 && limit > t.cfg.MaxPages {
		limit = t.cfg.MaxPages
	}
	var b strings.Builder
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return "", pages, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, perr := p.GetPlainText(nil)
		if perr != nil {
			t.logger.Debug("ocr.text_layer.page_failed", "page", i, "error", perr)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(content)
	}
	return b.String(), pages, nil
}

func (t *TextLayer) pdfToText(ctx context.Context, data []byte) (string, int, []byte, error) {
	_, path, cleanup, err := spill(data, constants.MIMEPDF)
	if err != nil {
		return "", 0, nil, err
	}
	defer cleanup()

	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if t.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", t.cfg.MaxPages))
	}
	args = append(args, path, "-")
	out, errb, err := t.runner.Run(ctx, t.cfg.Pdftotext, args...)
	if err != nil {
		return "", 0, errb, err
	}
	text := string(out)
	// form feed separates pages
	pages := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	return text, pages, nil, nil
}

// Probe checks that the pdftotext fallback is installed.
func (t *TextLayer) Probe(ctx context.Context) error {
	if _, _, err := t.runner.Run(ctx, t.cfg.Pdftotext, "-v"); err != nil {
		return fmt.Errorf("%s unavailable: %w", t.cfg.Pdftotext, err)
	}
	return nil
}
