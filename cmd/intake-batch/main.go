package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/internal/app"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/export"
	"github.com/joseph-ayodele/docintake/internal/ingest"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem    = flag.Bool("inmem", false, "use in-memory SQLite, the in-memory ttl store and temp-dir storage")
		dir      = flag.String("dir", "", "directory of documents to ingest (required)")
		building = flag.String("building", "", "building id to attach documents to")
		user     = flag.String("user", "batch", "owner user id recorded on the jobs")
		agency   = flag.String("agency", "", "owner agency id recorded on the jobs")
		out      = flag.String("out", "", "optional XLSX report path")
		watch    = flag.Bool("watch", false, "keep running and ingest files as they appear")
		hidden   = flag.Bool("hidden", false, "include hidden files and directories")
		wait     = flag.Duration("wait", 10*time.Minute, "how long to wait for each job to finish")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := app.NewLogger(false)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if *inmem {
		if err := app.InMemory(cfg); err != nil {
			logger.Error("failed to prepare in-memory mode", "error", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	actor := common.Actor{UserID: *user, AgencyID: *agency}

	logger.Info("starting ingestion", "dir", *dir, "building", *building)
	results, stats, err := a.Ingest.IngestDirectory(ctx, actor, *dir, *building, !*hidden)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	var jobs []*entity.ProcessingJob
	failures := 0
	for _, r := range results {
		if r.Err != "" || r.JobID == uuid.Nil {
			failures++
			continue
		}
		job, err := runToCompletion(ctx, a.Machine, actor, r.JobID, *wait)
		if err != nil {
			logger.Error("failed to process document", "path", r.SourcePath, "job_id", r.JobID, "error", err)
			failures++
			continue
		}
		jobs = append(jobs, job)
	}

	printTable(results, jobs)

	if *out != "" {
		data, err := export.JobsWorkbook(jobs)
		if err != nil {
			logger.Error("failed to build report", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			logger.Error("failed to write output file", "error", err)
			os.Exit(1)
		}
		logger.Info("report written", "path", *out, "rows", len(jobs))
	}

	logger.Info("batch processing complete", "documents", len(results), "finished", len(jobs), "failures", failures)

	if *watch {
		watchDir(ctx, a, actor, *dir, *building, !*hidden, *wait, logger)
	}
}

// runToCompletion advances id in this process and waits out any worker holding its claim.
func runToCompletion(ctx context.Context, m *pipeline.Machine, actor common.Actor, id uuid.UUID, wait time.Duration) (*entity.ProcessingJob, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := m.Advance(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printTable(results []ingest.IngestionResult, jobs []*entity.ProcessingJob) {
	byID := make(map[uuid.UUID]*entity.ProcessingJob, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tJOB\tSTATUS\tCLASSIFICATION\tNEXT DUE\tNOTE")
	for _, r := range results {
		name := filepath.Base(r.SourcePath)
		if r.Err != "" {
			_, _ = fmt.Fprintf(tw, "%s\t-\tREJECTED\t\t\t%s\n", name, r.Err)
			continue
		}
		j, ok := byID[r.JobID]
		if !ok {
			_, _ = fmt.Fprintf(tw, "%s\t%s\tUNFINISHED\t\t\t\n", name, r.JobID)
			continue
		}
		v := pipeline.ViewOf(j)
		var sum entity.JobSummary
		if len(j.Summary) > 0 {
			_ = json.Unmarshal(j.Summary, &sum)
		}
		note := ""
		switch {
		case v.Error != nil:
			note = v.Error.Code + ": " + v.Error.Message
		case sum.PossibleDuplicate:
			note = "possible duplicate"
		case sum.OCRNeeded:
			note = "ocr needed"
		}
		due := ""
		if sum.NextDueDate != nil {
			due = *sum.NextDueDate
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", name, j.ID, j.Status, sum.Classification, due, note)
	}
	_ = tw.Flush()
}

func watchDir(ctx context.Context, a *app.App, actor common.Actor, dir, building string, skipHidden bool, wait time.Duration, logger *slog.Logger) {
	logger.Info("watching for new documents", "dir", dir)
	err := a.Ingest.Watch(ctx, actor, building, ingest.WatchConfig{
		Roots:      []string{dir},
		SkipHidden: skipHidden,
		Debounce:   500 * time.Millisecond,
	}, func(r ingest.IngestionResult) {
		if r.Err != "" || r.JobID == uuid.Nil || r.Deduplicated {
			return
		}
		job, err := runToCompletion(ctx, a.Machine, actor, r.JobID, wait)
		if err != nil {
			logger.Error("failed to process document", "path", r.SourcePath, "error", err)
			return
		}
		printTable([]ingest.IngestionResult{r}, []*entity.ProcessingJob{job})
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("watch stopped", "error", err)
		os.Exit(1)
	}
}
