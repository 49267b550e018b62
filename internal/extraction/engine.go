package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/metrics"
)

const excerptRunes = 500

// Options tunes the engine.
type Options struct {
	Window          Window
	LenientOptional bool
}

// Engine runs field extractors in order and always hands back a schema-valid result.
type Engine struct {
	extractors []FieldExtractor
	opts       Options
	logger     *slog.Logger
}

func NewEngine(extractors []FieldExtractor, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{extractors: extractors, opts: opts, logger: logger}
}

// Extractors lists the configured extractor names in order.
func (e *Engine) Extractors() []string {
	names := make([]string, len(e.extractors))
	for i, x := range e.extractors {
		names[i] = x.Name()
	}
	return names
}

// Extract classifies and extracts in. The error is non-nil only when the context is done
// or the final value itself fails validation.
func (e *Engine) Extract(ctx context.Context, in Input) (entity.ExtractionResult, Provenance, error) {
	if in.OCRNeeded || strings.TrimSpace(in.Text) == "" {
		res := DefaultResult(in.Filename)
		res.PageCount = max(in.PageCount, 0)
		e.logger.Info("extract.fallback.default", "reason", "no_text", "filename", in.Filename)
		metrics.IncExtractionFallback("default", "no_text")
		return res, Provenance{Defaulted: true}, nil
	}

	text, truncated, tokens := e.opts.Window.Apply(in.Text)
	req := Request{Text: text, Filename: in.Filename, PageCount: in.PageCount, Truncated: truncated}
	prov := Provenance{Truncated: truncated, InputTokens: tokens}

	for _, x := range e.extractors {
		if err := ctx.Err(); err != nil {
			return entity.ExtractionResult{}, prov, err
		}
		start := time.Now()
		res, sanitized, err := e.try(ctx, x, req, in)
		attempt := ExtractorAttempt{Extractor: x.Name(), Outcome: "ok", ElapsedMS: time.Since(start).Milliseconds()}
		if err != nil {
			attempt.Outcome = "error"
			var ve *validationError
			if errors.As(err, &ve) {
				attempt.Outcome = "invalid"
			}
			attempt.Reason = err.Error()
			prov.Attempts = append(prov.Attempts, attempt)
			metrics.IncExtractionFallback(x.Name(), attempt.Outcome)
			e.logger.Warn("extract.extractor.failed",
				"extractor", x.Name(), "outcome", attempt.Outcome, "error", err, "elapsed_ms", attempt.ElapsedMS)
			continue
		}
		prov.Attempts = append(prov.Attempts, attempt)
		prov.Extractor = x.Name()
		prov.Sanitized = sanitized
		e.logger.Info("extract.ok",
			"extractor", x.Name(), "classification", res.Classification,
			"confidence", res.Confidence, "sanitized", len(sanitized), "elapsed_ms", attempt.ElapsedMS)
		return res, prov, nil
	}

	if err := ctx.Err(); err != nil {
		return entity.ExtractionResult{}, prov, err
	}
	res := DefaultResult(in.Filename)
	res.PageCount = max(in.PageCount, 0)
	prov.Defaulted = true
	e.logger.Warn("extract.fallback.default", "reason", "extractors_exhausted", "attempts", len(prov.Attempts))
	metrics.IncExtractionFallback("default", "exhausted")
	if err := ValidateResult(res); err != nil {
		return res, prov, fmt.Errorf("default result invalid: %w", err)
	}
	return res, prov, nil
}

type validationError struct{ err error }

func (v *validationError) Error() string { return "schema: " + v.err.Error() }
func (v *validationError) Unwrap() error { return v.err }

func (e *Engine) try(ctx context.Context, x FieldExtractor, req Request, in Input) (entity.ExtractionResult, []string, error) {
	raw, err := x.ExtractFields(ctx, req)
	if err != nil {
		return entity.ExtractionResult{}, nil, err
	}

	var sanitized []string
	filled, err := fillServerFields(raw, in)
	if err == nil {
		err = Validate(filled)
	}
	if err != nil {
		if !e.opts.LenientOptional {
			return entity.ExtractionResult{}, nil, &validationError{err}
		}
		cleaned, changed, sErr := Sanitize(raw, e.logger)
		if sErr != nil {
			return entity.ExtractionResult{}, nil, &validationError{sErr}
		}
		if filled, err = fillServerFields(cleaned, in); err == nil {
			err = Validate(filled)
		}
		if err != nil {
			return entity.ExtractionResult{}, nil, &validationError{err}
		}
		sanitized = changed
	}

	var res entity.ExtractionResult
	if err := json.Unmarshal(filled, &res); err != nil {
		return entity.ExtractionResult{}, nil, &validationError{err}
	}
	enforceInvariants(&res)
	if err := ValidateResult(res); err != nil {
		return entity.ExtractionResult{}, nil, &validationError{err}
	}
	return res, sanitized, nil
}

// fillServerFields overwrites the fields the server owns regardless of what an extractor said.
func fillServerFields(raw []byte, in Input) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(CleanJSON(string(raw))), &m); err != nil {
		return nil, fmt.Errorf("decode extractor output: %w", err)
	}
	if m == nil {
		return nil, errors.New("extractor output is not an object")
	}
	m["page_count"] = max(in.PageCount, 0)
	m["ocr_needed"] = false
	m["possible_duplicate"] = false
	m["duplicate_match_hint"] = nil
	m["text_extracted"] = Excerpt(in.Text)
	if t, ok := m["title"].(string); !ok || strings.TrimSpace(t) == "" {
		if f := strings.TrimSpace(in.Filename); f != "" {
			m["title"] = f
		} else {
			m["title"] = untitled
		}
	}
	return json.Marshal(m)
}

// Excerpt returns the leading part of the recovered text stored alongside a result.
func Excerpt(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= excerptRunes {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:excerptRunes]))
}
