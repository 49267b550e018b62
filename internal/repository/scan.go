package repository

import (
	stdsql "database/sql"
	"encoding/json"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

const tableJobs = "processing_jobs"

var jobColumns = []string{
	"id", "owner_user_id", "agency_id", "building_id", "unit_id",
	"filename", "byte_size", "mime_type", "storage_key", "content_sha256", "page_count",
	"status", "raw_text", "extraction", "summary", "ocr_attempts",
	"error_code", "error_message", "attempt_count", "claim_token", "claimed_at",
	"created_at", "stage_entered_at", "updated_at",
}

func scanJob(rows *entsql.Rows) (*entity.ProcessingJob, error) {
	var (
		j                                      entity.ProcessingJob
		agency, building, unit                 stdsql.NullString
		rawText, extraction, summary, attempts stdsql.NullString
		errCode, errMsg                        stdsql.NullString
		claim                                  uuid.NullUUID
		claimedAt                              stdsql.NullTime
		status                                 string
	)
	if err := rows.Scan(
		&j.ID, &j.OwnerUserID, &agency, &building, &unit,
		&j.Filename, &j.ByteSize, &j.MIMEType, &j.StorageKey, &j.ContentSHA256, &j.PageCount,
		&status, &rawText, &extraction, &summary, &attempts,
		&errCode, &errMsg, &j.AttemptCount, &claim, &claimedAt,
		&j.CreatedAt, &j.StageEnteredAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	j.AgencyID = nullString(agency)
	j.BuildingID = nullString(building)
	j.UnitID = nullString(unit)
	j.RawText = nullString(rawText)
	j.Extraction = nullJSON(extraction)
	j.Summary = nullJSON(summary)
	j.OCRAttempts = nullJSON(attempts)
	j.ErrorCode = nullString(errCode)
	j.ErrorMessage = nullString(errMsg)
	if claim.Valid {
		tok := claim.UUID
		j.ClaimToken = &tok
	}
	if claimedAt.Valid {
		t := claimedAt.Time.UTC()
		j.ClaimedAt = &t
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.StageEnteredAt = j.StageEnteredAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func nullString(ns stdsql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullJSON(ns stdsql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

// jsonArg stores raw JSON as text, or NULL when empty.
func jsonArg(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func strArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// dbTime is the canonical timestamp written by this package: UTC with microsecond precision,
// matching what Postgres keeps.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
