package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
)

// ProcessingJob is one uploaded document's progress through the intake pipeline.
type ProcessingJob struct {
	ID          uuid.UUID `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	AgencyID    *string   `json:"agency_id,omitempty"`
	BuildingID  *string   `json:"building_id,omitempty"`
	UnitID      *string   `json:"unit_id,omitempty"`

	Filename      string `json:"filename"`
	ByteSize      int64  `json:"byte_size"`
	MIMEType      string `json:"mime_type"`
	StorageKey    string `json:"storage_key"`
	ContentSHA256 string `json:"content_sha256"`
	PageCount     int    `json:"page_count"`

	Status      constants.JobStatus `json:"status"`
	RawText     *string             `json:"raw_text,omitempty"`
	Extraction  json.RawMessage     `json:"extraction,omitempty"`
	Summary     json.RawMessage     `json:"summary,omitempty"`
	OCRAttempts json.RawMessage     `json:"ocr_attempts,omitempty"`

	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	AttemptCount int     `json:"attempt_count"`

	ClaimToken *uuid.UUID `json:"-"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	StageEnteredAt time.Time `json:"stage_entered_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Claimed reports whether a worker currently holds the job's stage.
func (j *ProcessingJob) Claimed() bool {
	return j.ClaimToken != nil
}

// AgencyIDValue returns the agency id or "".
func (j *ProcessingJob) AgencyIDValue() string {
	if j.AgencyID == nil {
		return ""
	}
	return *j.AgencyID
}

// BuildingIDValue returns the building id or "".
func (j *ProcessingJob) BuildingIDValue() string {
	if j.BuildingID == nil {
		return ""
	}
	return *j.BuildingID
}

// OCROutcome classifies one strategy attempt.
type OCROutcome string

const (
	OCROutcomeSuccess    OCROutcome = "success"
	OCROutcomeFailure    OCROutcome = "failure"
	OCROutcomeLowQuality OCROutcome = "low_quality"
	OCROutcomeSkipped    OCROutcome = "skipped"
)

// OCRAttempt records one strategy invocation in the fallback chain.
type OCRAttempt struct {
	Strategy   string     `json:"strategy"`
	Outcome    OCROutcome `json:"outcome"`
	ElapsedMS  int64      `json:"elapsed_ms"`
	TextLength int        `json:"text_length"`
	Quality    float64    `json:"quality"`
	Reason     string     `json:"reason,omitempty"`
}

// JobSummary is the SUMMARISE stage artifact.
type JobSummary struct {
	Classification    string                `json:"classification"`
	Title             string                `json:"title"`
	Confidence        float64               `json:"confidence"`
	OCRNeeded         bool                  `json:"ocr_needed"`
	PossibleDuplicate bool                  `json:"possible_duplicate"`
	DuplicateOf       *uuid.UUID            `json:"duplicate_of,omitempty"`
	Compliance        *ComplianceAssetMatch `json:"compliance,omitempty"`
	NextDueDate       *string               `json:"next_due_date,omitempty"`
	Reminders         []Reminder            `json:"reminders"`
	BlockingIssues    []string              `json:"blocking_issues"`
	FollowUps         []string              `json:"follow_ups"`
}
