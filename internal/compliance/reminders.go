package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docintake/internal/entity"
)

// Notifier delivers one due reminder.
type Notifier interface {
	Notify(ctx context.Context, link entity.ComplianceLink) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, link entity.ComplianceLink) error

func (f NotifierFunc) Notify(ctx context.Context, link entity.ComplianceLink) error {
	return f(ctx, link)
}

// LogNotifier writes each reminder to the log.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(_ context.Context, l entity.ComplianceLink) error {
		logger.Info("compliance.reminder.due",
			"link_id", l.ID, "job_id", l.JobID, "building_id", l.BuildingID, "asset_id", l.AssetID,
			"due_date", l.DueDate, "reminder_date", l.ReminderDate, "reason", l.ReminderReason)
		return nil
	})
}

// SendDueReminders notifies every unnotified reminder dated on or before asOf and marks it
// sent. A failed notification is logged and left for the next run.
func SendDueReminders(ctx context.Context, store ReminderStore, n Notifier, asOf time.Time, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	due, err := store.DueReminders(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}
	sent := 0
	for _, l := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := n.Notify(ctx, l); err != nil {
			logger.Warn("compliance.reminder.notify_failed", "link_id", l.ID, "error", err)
			continue
		}
		if err := store.MarkNotified(ctx, l.ID, time.Now().UTC()); err != nil {
			return sent, fmt.Errorf("mark reminder %d notified: %w", l.ID, err)
		}
		sent++
	}
	logger.Info("compliance.reminder.run", "as_of", asOf.Format(isoLayout), "due", len(due), "sent", sent)
	return sent, nil
}
