package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/compliance"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/repository"
)

// runSummarise flags duplicates, links the compliance asset and writes the summary.
func (m *Machine) runSummarise(ctx context.Context, job *entity.ProcessingJob, logger *slog.Logger) (repository.StageCommit, error) {
	res, err := decodeExtraction(job)
	if err != nil {
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeSchemaViolation, "stored extraction unreadable", err)
	}

	dupOf := m.findDuplicate(ctx, job, &res, logger)

	buildingID := job.BuildingIDValue()
	match, err := m.matcher.Match(ctx, res, buildingID, job.ID)
	if err != nil {
		if ctx.Err() != nil {
			return repository.StageCommit{}, ctx.Err()
		}
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeComplianceUnavailable, "compliance catalog unavailable", err)
	}
	if match.Matched() {
		if match.DueDate != nil {
			due := *match.DueDate
			res.NextDueDate = &due
		}
		if match.Reminder != nil {
			res.Reminders = mergeReminder(res.Reminders, *match.Reminder)
		}
		link := entity.ComplianceLink{
			JobID:      job.ID,
			BuildingID: buildingID,
			AssetID:    *match.AssetID,
			DueDate:    match.DueDate,
		}
		if match.Reminder != nil {
			date := match.Reminder.Date
			link.ReminderDate = &date
			link.ReminderLabel = match.Reminder.Label
			link.ReminderReason = match.Reminder.Reason
		}
		if _, err := m.sink.Link(ctx, link); err != nil {
			if ctx.Err() != nil {
				return repository.StageCommit{}, ctx.Err()
			}
			return repository.StageCommit{}, common.NewAppError(constants.ErrCodeComplianceUnavailable, "compliance link store unavailable", err)
		}
	} else if err := m.sink.Unlink(ctx, job.ID); err != nil {
		// a rerun that matches nothing drops the link from the earlier run
		if ctx.Err() != nil {
			return repository.StageCommit{}, ctx.Err()
		}
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeComplianceUnavailable, "compliance link store unavailable", err)
	}

	if err := extraction.ValidateResult(res); err != nil {
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeSchemaViolation, "summarised extraction failed validation", err)
	}

	summary := entity.JobSummary{
		Classification:    res.Classification,
		Title:             res.Title,
		Confidence:        res.Confidence,
		OCRNeeded:         res.OCRNeeded,
		PossibleDuplicate: res.PossibleDuplicate,
		DuplicateOf:       dupOf,
		NextDueDate:       res.NextDueDate,
		Reminders:         res.Reminders,
		BlockingIssues:    res.BlockingIssues,
		FollowUps:         res.FollowUps,
	}
	if match.Matched() {
		summary.Compliance = &match
	}
	extBody, err := json.Marshal(res)
	if err != nil {
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeSchemaViolation, "encode extraction", err)
	}
	sumBody, err := json.Marshal(summary)
	if err != nil {
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeInternal, "encode summary", err)
	}
	logger.Info("summarise.done",
		"classification", res.Classification,
		"asset_id", match.AssetID,
		"score", match.Score,
		"due_date", res.NextDueDate,
		"possible_duplicate", res.PossibleDuplicate,
	)
	return repository.StageCommit{To: constants.JobStatusReady, Extraction: extBody, Summary: sumBody}, nil
}

// findDuplicate compares job against the owner's other READY documents: the same bytes, or
// the same title on the same issue date. Lookup failures only cost the hint.
func (m *Machine) findDuplicate(ctx context.Context, job *entity.ProcessingJob, res *entity.ExtractionResult, logger *slog.Logger) *uuid.UUID {
	if prev, err := m.jobs.FindByHash(ctx, job.OwnerUserID, job.ContentSHA256, job.ID); err == nil {
		markDuplicate(res, prev)
		logger.Info("summarise.duplicate", "of", prev.ID, "by", "content_hash")
		return &prev.ID
	} else if !repository.IsNotFound(err) {
		logger.Warn("summarise.duplicate.lookup_failed", "error", err)
		return nil
	}

	if res.OCRNeeded || res.InspectionOrIssueDate == nil {
		return nil
	}
	title := compliance.Normalize(res.Title)
	if title == "" {
		return nil
	}
	ready, err := m.jobs.ListReady(ctx, job.OwnerUserID, job.ID, 0)
	if err != nil {
		logger.Warn("summarise.duplicate.lookup_failed", "error", err)
		return nil
	}
	for _, prev := range ready {
		other, err := decodeExtraction(prev)
		if err != nil || other.InspectionOrIssueDate == nil {
			continue
		}
		if *other.InspectionOrIssueDate == *res.InspectionOrIssueDate && compliance.Normalize(other.Title) == title {
			markDuplicate(res, prev)
			logger.Info("summarise.duplicate", "of", prev.ID, "by", "title_date")
			return &prev.ID
		}
	}
	return nil
}

func markDuplicate(res *entity.ExtractionResult, prev *entity.ProcessingJob) {
	res.PossibleDuplicate = true
	hint := &entity.DuplicateHint{Title: prev.Filename}
	if other, err := decodeExtraction(prev); err == nil {
		hint.Title = other.Title
		hint.Date = other.InspectionOrIssueDate
	}
	res.DuplicateMatchHint = hint
}

// mergeReminder replaces an existing reminder with the same label.
func mergeReminder(list []entity.Reminder, r entity.Reminder) []entity.Reminder {
	for i := range list {
		if list[i].Label == r.Label {
			list[i] = r
			return list
		}
	}
	return append(list, r)
}
