// Package compliance links extracted documents to recurring building obligations and
// works out when they next fall due.
package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/internal/entity"
)

// Catalog lists the assets a document may be matched against. An empty buildingID lists
// the master catalog only.
type Catalog interface {
	ListAssets(ctx context.Context, buildingID string) ([]entity.ComplianceAsset, error)
}

// Sink persists the association between a job and an asset together with its reminder.
type Sink interface {
	Link(ctx context.Context, link entity.ComplianceLink) (entity.ComplianceLink, error)
	Unlink(ctx context.Context, jobID uuid.UUID) error
}

// ReminderStore backs the reminder check.
type ReminderStore interface {
	DueReminders(ctx context.Context, asOf time.Time) ([]entity.ComplianceLink, error)
	MarkNotified(ctx context.Context, linkID int64, at time.Time) error
}
