package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joseph-ayodele/docintake/internal/app"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/compliance"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

func main() {
	var (
		asOfStr = flag.String("as-of", "", "reminder cut-off date YYYY-MM-DD (default today)")
		dryRun  = flag.Bool("dry-run", false, "list due reminders without marking them notified")
	)
	flag.Parse()

	logger := app.NewLogger(false)

	asOf := time.Now().UTC()
	if *asOfStr != "" {
		t, err := time.Parse(time.DateOnly, *asOfStr)
		if err != nil {
			logger.Error("invalid --as-of date, use YYYY-MM-DD", "value", *asOfStr, "error", err)
			os.Exit(2)
		}
		asOf = t
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LINK\tBUILDING\tASSET\tDUE\tREMIND\tREASON")
	printer := compliance.NotifierFunc(func(_ context.Context, l entity.ComplianceLink) error {
		_, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.BuildingID, l.AssetID,
			utils.StrOrEmpty(l.DueDate), utils.StrOrEmpty(l.ReminderDate), l.ReminderReason)
		return err
	})

	if *dryRun {
		due, err := a.Compliance.DueReminders(ctx, asOf)
		if err != nil {
			logger.Error("failed to list reminders", "error", err)
			os.Exit(1)
		}
		for _, l := range due {
			_ = printer.Notify(ctx, l)
		}
		_ = tw.Flush()
		return
	}

	sent, err := compliance.SendDueReminders(ctx, a.Compliance, printer, asOf, logger)
	_ = tw.Flush()
	if err != nil {
		logger.Error("reminder run failed", "sent", sent, "error", err)
		os.Exit(1)
	}
	fmt.Printf("%d reminder(s) marked notified as of %s\n", sent, asOf.Format(time.DateOnly))
}
