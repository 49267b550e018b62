package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joseph-ayodele/docintake/internal/app"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/ingest"
	"github.com/joseph-ayodele/docintake/internal/ocr"
)

func main() {
	var (
		order    = flag.String("strategies", "", "comma-separated strategy order (default OCR_STRATEGY_ORDER)")
		showText = flag.Bool("text", false, "print the recovered text")
	)
	flag.Parse()

	logger := app.NewLogger(false)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [--strategies text_layer,tesseract] [--text] <file.pdf|png|jpg>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if *order != "" {
		cfg.OCR.StrategyOrder = strings.Split(*order, ",")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}
	mime := ingest.DetectMIME(filepath.Base(path), "", data)
	if err := ingest.CheckUpload(mime, int64(len(data)), cfg.Server.MaxUploadBytes); err != nil {
		logger.Error("file rejected", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	orch, err := ocr.NewFromConfig(ctx, cfg.OCR, cfg.LLM, logger)
	if err != nil {
		logger.Error("build ocr chain", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	res, err := orch.Recover(ctx, data, mime)
	if err != nil {
		logger.Error("text recovery failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STRATEGY\tOUTCOME\tQUALITY\tCHARS\tELAPSED\tREASON")
	for _, a := range res.Attempts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%dms\t%s\n", a.Strategy, a.Outcome, a.Quality, a.TextLength, a.ElapsedMS, a.Reason)
	}
	_ = tw.Flush()

	logger.Info("text recovery OK",
		"strategy", res.Strategy,
		"quality", res.Quality,
		"level", res.Level,
		"pages", res.Pages,
		"ocr_needed", res.OCRNeeded,
		"degraded", res.Degraded,
		"bytes", len(res.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	for _, w := range res.Warnings {
		logger.Warn("ocr.warning", "detail", w)
	}
	if *showText {
		fmt.Println(res.Text)
	}
}
