package entity

import (
	"time"

	"github.com/google/uuid"
)

// ComplianceAsset is a recurring obligation tracked for a building.
type ComplianceAsset struct {
	ID              string   `json:"id"`
	Key             string   `json:"key"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	FrequencyMonths int      `json:"frequency_months"`
	Aliases         []string `json:"aliases,omitempty"`
}

// ComplianceAssetMatch is the derived link between a document and a catalog asset.
type ComplianceAssetMatch struct {
	AssetID         *string   `json:"asset_id"`
	AssetName       string    `json:"asset_name,omitempty"`
	BuildingID      string    `json:"building_id"`
	DocumentID      uuid.UUID `json:"document_id"`
	Score           float64   `json:"score"`
	FrequencyMonths int       `json:"frequency_months,omitempty"`
	DueDate         *string   `json:"due_date"`
	Reminder        *Reminder `json:"reminder,omitempty"`
}

// Matched reports whether a catalog asset cleared the threshold.
func (m ComplianceAssetMatch) Matched() bool {
	return m.AssetID != nil
}

// ComplianceLink is the persisted association written for the compliance subsystem.
type ComplianceLink struct {
	ID             int64      `json:"id"`
	JobID          uuid.UUID  `json:"job_id"`
	BuildingID     string     `json:"building_id"`
	AssetID        string     `json:"asset_id"`
	DueDate        *string    `json:"due_date,omitempty"`
	ReminderDate   *string    `json:"reminder_date,omitempty"`
	ReminderLabel  string     `json:"reminder_label,omitempty"`
	ReminderReason string     `json:"reminder_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
}
