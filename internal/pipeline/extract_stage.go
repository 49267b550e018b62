package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/repository"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

// runExtract classifies the recovered text. A NULL raw_text means OCR found nothing usable.
func (m *Machine) runExtract(ctx context.Context, job *entity.ProcessingJob, logger *slog.Logger) (repository.StageCommit, error) {
	in := extraction.Input{
		Text:      utils.StrOrEmpty(job.RawText),
		Filename:  job.Filename,
		PageCount: job.PageCount,
		OCRNeeded: job.RawText == nil,
	}
	res, prov, err := m.extract.Extract(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return repository.StageCommit{}, ctx.Err()
		}
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeSchemaViolation, "extraction failed validation", err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeSchemaViolation, "encode extraction", err)
	}
	logger.Info("extract.done",
		"classification", res.Classification,
		"confidence", res.Confidence,
		"extractor", prov.Extractor,
		"defaulted", prov.Defaulted,
		"sanitized", len(prov.Sanitized),
		"truncated", prov.Truncated,
	)
	return repository.StageCommit{To: constants.JobStatusSummarise, Extraction: body}, nil
}

func decodeExtraction(job *entity.ProcessingJob) (entity.ExtractionResult, error) {
	var res entity.ExtractionResult
	if len(job.Extraction) == 0 {
		return res, fmt.Errorf("job %s has no extraction", job.ID)
	}
	if err := json.Unmarshal(job.Extraction, &res); err != nil {
		return res, fmt.Errorf("decode extraction: %w", err)
	}
	return res, nil
}
