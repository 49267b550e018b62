package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/kv"
	"github.com/joseph-ayodele/docintake/internal/metrics"
)

// Options are the quality gate and timing knobs of the fallback chain.
type Options struct {
	StrategyTimeout time.Duration // per attempt, default 60s
	MinChars        int           // default 40
	MinQuality      float64       // default 0.35
	CacheTTL        time.Duration
}

func (o Options) withDefaults() Options {
	if o.StrategyTimeout <= 0 {
		o.StrategyTimeout = 60 * time.Second
	}
	if o.MinChars <= 0 {
		o.MinChars = 40
	}
	if o.MinQuality <= 0 {
		o.MinQuality = 0.35
	}
	return o
}

// Orchestrator tries strategies in order and stops at the first result that clears the gate.
type Orchestrator struct {
	strategies []Strategy
	opts       Options
	cache      kv.Store
	logger     *slog.Logger
}

func NewOrchestrator(strategies []Strategy, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		return nil, errors.New("ocr: at least one strategy is required")
	}
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("ocr: strategy %q listed twice", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}
	return &Orchestrator{strategies: strategies, opts: opts.withDefaults(), logger: logger}, nil
}

// WithCache remembers recovered text by content hash. A nil store disables caching.
func (o *Orchestrator) WithCache(store kv.Store) *Orchestrator {
	o.cache = store
	return o
}

// Strategies returns the configured order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, len(o.strategies))
	for i, s := range o.strategies {
		names[i] = s.Name()
	}
	return names
}

type candidate struct {
	text     string
	quality  float64
	strategy string
	pages    int
}

type cachedText struct {
	Text     string  `json:"text"`
	Quality  float64 `json:"quality"`
	Strategy string  `json:"strategy"`
	Pages    int     `json:"pages"`
}

// Recover runs the chain. Exhausting every strategy is not an error: the result either
// carries the best degraded candidate or is empty with OCRNeeded set. The only error is
// cancellation of ctx itself.
func (o *Orchestrator) Recover(ctx context.Context, data []byte, mime string) (Result, error) {
	start := time.Now()
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	logger := o.logger.With("sha256", hash[:12], "mime", mime, "bytes", len(data))

	if res, ok := o.fromCache(ctx, hash); ok {
		res.Duration = time.Since(start)
		logger.Info("ocr.cache.hit", "strategy", res.Strategy, "quality", res.Quality)
		return res, nil
	}

	var (
		attempts []entity.OCRAttempt
		warnings []string
		best     *candidate
	)
	for _, s := range o.strategies {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts, Duration: time.Since(start)}, err
		}
		att, cand, warns := o.attempt(ctx, s, data, mime, logger)
		attempts = append(attempts, att)
		warnings = append(warnings, warns...)
		metrics.ObserveOCRAttempt(att.Strategy, string(att.Outcome), time.Duration(att.ElapsedMS)*time.Millisecond)

		switch att.Outcome {
		case entity.OCROutcomeSuccess:
			res := Result{
				Text:     cand.text,
				Quality:  cand.quality,
				Level:    LevelFor(cand.quality),
				Strategy: cand.strategy,
				Pages:    cand.pages,
				Attempts: attempts,
				Warnings: warnings,
				Duration: time.Since(start),
			}
			o.toCache(ctx, hash, cand)
			logger.Info("ocr.recovered", "strategy", res.Strategy, "quality", res.Quality, "level", res.Level,
				"attempts", len(attempts), "elapsed_ms", res.Duration.Milliseconds())
			return res, nil
		case entity.OCROutcomeLowQuality:
			if cand != nil && utf8.RuneCountInString(cand.text) >= o.opts.MinChars && (best == nil || cand.quality > best.quality) {
				best = cand
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{Attempts: attempts, Duration: time.Since(start)}, err
	}

	metrics.IncOCRExhausted()
	if best != nil {
		logger.Warn("ocr.exhausted.degraded", "strategy", best.strategy, "quality", best.quality, "attempts", len(attempts))
		return Result{
			Text:     best.text,
			Quality:  best.quality,
			Level:    LevelFor(best.quality),
			Strategy: best.strategy,
			Pages:    best.pages,
			Degraded: true,
			Attempts: attempts,
			Warnings: warnings,
			Duration: time.Since(start),
		}, nil
	}
	logger.Warn("ocr.exhausted.ocr_needed", "attempts", len(attempts))
	return Result{
		Level:     QualityFailed,
		OCRNeeded: true,
		Attempts:  attempts,
		Warnings:  warnings,
		Duration:  time.Since(start),
	}, nil
}

func (o *Orchestrator) attempt(ctx context.Context, s Strategy, data []byte, mime string, logger *slog.Logger) (att entity.OCRAttempt, cand *candidate, warns []string) {
	att.Strategy = s.Name()
	if sup, ok := s.(MIMESupporter); ok && !sup.Supports(mime) {
		att.Outcome = entity.OCROutcomeSkipped
		att.Reason = "unsupported mime " + mime
		logger.Debug("ocr.attempt.skipped", "strategy", att.Strategy)
		return att, nil, nil
	}

	actx, cancel := context.WithTimeout(ctx, o.opts.StrategyTimeout)
	defer cancel()

	start := time.Now()
	rec, err := safeExtract(actx, s, data, mime)
	att.ElapsedMS = time.Since(start).Milliseconds()
	warns = rec.Warnings

	if err != nil {
		att.Outcome = entity.OCROutcomeFailure
		att.Reason = err.Error()
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			att.Reason = fmt.Sprintf("timeout after %s", o.opts.StrategyTimeout)
		}
		logger.Warn("ocr.attempt.failed", "strategy", att.Strategy, "error", err, "elapsed_ms", att.ElapsedMS)
		return att, nil, warns
	}

	text := Normalize(rec.Text)
	att.TextLength = utf8.RuneCountInString(text)
	att.Quality = Quality(text, rec.Confidence)
	cand = &candidate{text: text, quality: att.Quality, strategy: att.Strategy, pages: rec.Pages}

	switch {
	case att.TextLength < o.opts.MinChars:
		att.Outcome = entity.OCROutcomeLowQuality
		att.Reason = fmt.Sprintf("%d chars below minimum %d", att.TextLength, o.opts.MinChars)
	case att.Quality < o.opts.MinQuality:
		att.Outcome = entity.OCROutcomeLowQuality
		att.Reason = fmt.Sprintf("quality %.2f below minimum %.2f", att.Quality, o.opts.MinQuality)
	default:
		att.Outcome = entity.OCROutcomeSuccess
	}
	logger.Info("ocr.attempt."+string(att.Outcome), "strategy", att.Strategy, "chars", att.TextLength,
		"quality", att.Quality, "elapsed_ms", att.ElapsedMS)
	return att, cand, warns
}

func safeExtract(ctx context.Context, s Strategy, data []byte, mime string) (rec Recovery, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = Recovery{Confidence: NoConfidence}
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return s.Extract(ctx, data, mime)
}

func (o *Orchestrator) fromCache(ctx context.Context, hash string) (Result, bool) {
	if o.cache == nil {
		return Result{}, false
	}
	raw, err := o.cache.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			o.logger.Warn("ocr.cache.get_failed", "error", err)
		}
		return Result{}, false
	}
	var c cachedText
	if err := json.Unmarshal(raw, &c); err != nil {
		return Result{}, false
	}
	return Result{
		Text:     c.Text,
		Quality:  c.Quality,
		Level:    LevelFor(c.Quality),
		Strategy: c.Strategy,
		Pages:    c.Pages,
		Cached:   true,
	}, true
}

func (o *Orchestrator) toCache(ctx context.Context, hash string, c *candidate) {
	if o.cache == nil || c == nil {
		return
	}
	raw, err := json.Marshal(cachedText{Text: c.text, Quality: c.quality, Strategy: c.strategy, Pages: c.pages})
	if err != nil {
		return
	}
	if err := o.cache.Put(ctx, hash, raw, o.opts.CacheTTL); err != nil {
		o.logger.Warn("ocr.cache.put_failed", "error", err)
	}
}

// Probe checks every strategy that can report readiness, concurrently.
func (o *Orchestrator) Probe(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range o.strategies {
		p, ok := s.(Prober)
		if !ok {
			continue
		}
		name := s.Name()
		g.Go(func() error {
			if err := p.Probe(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
