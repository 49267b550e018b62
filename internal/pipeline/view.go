package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

// JobError is the recorded reason a job is FAILED.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobView is what status polls return.
type JobView struct {
	ID             uuid.UUID           `json:"id"`
	Status         constants.JobStatus `json:"status"`
	Filename       string              `json:"filename"`
	MIMEType       string              `json:"mime_type"`
	ByteSize       int64               `json:"byte_size"`
	PageCount      int                 `json:"page_count"`
	BuildingID     *string             `json:"building_id,omitempty"`
	UnitID         *string             `json:"unit_id,omitempty"`
	AttemptCount   int                 `json:"attempt_count"`
	Running        bool                `json:"running"`
	Extraction     json.RawMessage     `json:"extraction,omitempty"`
	Summary        json.RawMessage     `json:"summary,omitempty"`
	OCRAttempts    json.RawMessage     `json:"ocr_attempts,omitempty"`
	Error          *JobError           `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	StageEnteredAt time.Time           `json:"stage_entered_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func ViewOf(j *entity.ProcessingJob) JobView {
	v := JobView{
		ID:             j.ID,
		Status:         j.Status,
		Filename:       j.Filename,
		MIMEType:       j.MIMEType,
		ByteSize:       j.ByteSize,
		PageCount:      j.PageCount,
		BuildingID:     j.BuildingID,
		UnitID:         j.UnitID,
		AttemptCount:   j.AttemptCount,
		Running:        j.Claimed(),
		Extraction:     j.Extraction,
		Summary:        j.Summary,
		OCRAttempts:    j.OCRAttempts,
		CreatedAt:      j.CreatedAt,
		StageEnteredAt: j.StageEnteredAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Status == constants.JobStatusFailed {
		e := &JobError{}
		if j.ErrorCode != nil {
			e.Code = *j.ErrorCode
		}
		if j.ErrorMessage != nil {
			e.Message = *j.ErrorMessage
		}
		v.Error = e
	}
	return v
}
