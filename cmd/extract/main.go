package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/internal/app"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/compliance"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/extraction/registry"
)

func main() {
	var (
		extractors = flag.String("extractors", "", "comma-separated extractor order (default EXTRACTORS)")
		filename   = flag.String("filename", "", "original document filename hint (default: the text file name)")
		pages      = flag.Int("pages", 1, "page count of the original document")
		match      = flag.Bool("match", false, "also match against the master compliance catalog")
	)
	flag.Parse()

	logger := app.NewLogger(false)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "extract [--extractors openai,keyword] [--match] <text-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)
	text, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read text", "path", path, "error", err)
		os.Exit(1)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if *extractors != "" {
		cfg.LLM.Extractors = strings.Split(*extractors, ",")
	}
	if *filename == "" {
		*filename = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".pdf"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eng, err := registry.NewEngine(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Error("build extraction engine", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	res, prov, err := eng.Extract(ctx, extraction.Input{Text: string(text), Filename: *filename, PageCount: *pages})
	if err != nil {
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}
	logger.Info("extraction OK",
		"extractor", prov.Extractor,
		"defaulted", prov.Defaulted,
		"truncated", prov.Truncated,
		"classification", res.Classification,
		"confidence", res.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	out := map[string]any{"extraction": res, "provenance": prov}
	if *match {
		m := compliance.NewMatcher(compliance.StaticCatalog(compliance.MasterAssets), compliance.Options{
			Threshold: cfg.Compliance.MatchThreshold,
			LeadDays:  cfg.Compliance.ReminderLeadDays,
		}, logger)
		cm, err := m.Match(ctx, res, "", uuid.Nil)
		if err != nil {
			logger.Error("compliance match failed", "error", err)
			os.Exit(1)
		}
		out["compliance"] = cm
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
