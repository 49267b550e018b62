package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docintake/constants"
)

// Tesseract rasterizes PDFs with pdftoppm and reads every page image with tesseract.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &Tesseract{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Supports(mime string) bool {
	return constants.IsAllowedMIME(mime)
}

func (t *Tesseract) Extract(ctx context.Context, data []byte, mime string) (Recovery, error) {
	dir, path, cleanup, err := spill(data, mime)
	if err != nil {
		return Recovery{Confidence: NoConfidence}, err
	}
	defer cleanup()

	images := []string{path}
	if constants.NormalizeMIME(mime) == constants.MIMEPDF {
		images, err = t.rasterize(ctx, path, dir)
		if err != nil {
			return Recovery{Confidence: NoConfidence}, err
		}
	}

	var (
		b        strings.Builder
		warns    []string
		confSum  float64
		confSeen int
	)
	for _, img := range images {
		txt, errb, err := t.ocrImage(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return Recovery{Confidence: NoConfidence, Warnings: warns}, ctx.Err()
			}
			warns = append(warns, fmt.Sprintf("%s: %v %s", filepath.Base(img), err, truncate(string(errb), 256)))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)

		if t.cfg.EnableTSVConfidence {
			if c, ok, err := t.tsvConfidence(ctx, img); err != nil {
				warns = append(warns, "tsv confidence: "+err.Error())
			} else if ok {
				confSum += c
				confSeen++
			}
		}
	}
	if b.Len() == 0 && len(warns) > 0 {
		return Recovery{Confidence: NoConfidence, Pages: len(images), Warnings: warns}, errors.New("tesseract produced no text on any page")
	}

	conf := NoConfidence
	if confSeen > 0 {
		conf = confSum / float64(confSeen)
	}
	return Recovery{Text: b.String(), Confidence: conf, Pages: len(images), Warnings: warns}, nil
}

func (t *Tesseract) rasterize(ctx context.Context, path, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(t.cfg.DPI), "-png"}
	if t.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(t.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := t.runner.Run(ctx, t.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 256))
	}

	// pdftoppm names pages prefix-1.png, prefix-2.png, ... (zero padded for long docs)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if t.cfg.MaxPages > 0 && len(matches) > t.cfg.MaxPages {
		matches = matches[:t.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, errors.New("pdftoppm produced no images")
	}
	return matches, nil
}

func (t *Tesseract) baseArgs(img string) []string {
	args := []string{img, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

func (t *Tesseract) ocrImage(ctx context.Context, img string) (string, []byte, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.baseArgs(img)...)
	if err != nil {
		return "", errb, err
	}
	return string(out), nil, nil
}

func (t *Tesseract) tsvConfidence(ctx context.Context, img string) (float64, bool, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, append(t.baseArgs(img), "tsv")...)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s", err, truncate(string(errb), 256))
	}
	c, ok := meanTSVConfidence(string(out))
	return c, ok, nil
}

// meanTSVConfidence averages the word confidences of tesseract TSV output into 0..1.
func meanTSVConfidence(tsv string) (float64, bool) {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		// level page block par line word left top width height conf text
		if cols[0] != "5" || strings.TrimSpace(cols[11]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return clamp01(sum / n / 100.0), true
}

// Probe checks that the tesseract binary is installed.
func (t *Tesseract) Probe(ctx context.Context) error {
	if _, _, err := t.runner.Run(ctx, t.cfg.Tesseract, "--version"); err != nil {
		return fmt.Errorf("%s unavailable: %w", t.cfg.Tesseract, err)
	}
	return nil
}
