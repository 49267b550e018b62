package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/repository"
)

// runOCR downloads the document and runs the fallback chain. Exhausting every strategy still
// commits: raw_text stays NULL and EXTRACT substitutes the default result.
func (m *Machine) runOCR(ctx context.Context, job *entity.ProcessingJob, logger *slog.Logger) (repository.StageCommit, error) {
	data, err := m.store.Get(ctx, job.StorageKey)
	if err != nil {
		if ctx.Err() != nil {
			return repository.StageCommit{}, ctx.Err()
		}
		return repository.StageCommit{}, common.NewAppError(constants.ErrCodeStorageUnavailable,
			fmt.Sprintf("read %s", job.StorageKey), err)
	}

	res, err := m.ocr.Recover(ctx, data, job.MIMEType)
	if err != nil {
		return repository.StageCommit{}, err
	}

	attempts := res.Attempts
	if attempts == nil {
		attempts = []entity.OCRAttempt{}
	}
	trail, err := json.Marshal(attempts)
	if err != nil {
		return repository.StageCommit{}, fmt.Errorf("encode ocr attempts: %w", err)
	}

	pages := job.PageCount
	if res.Pages > 0 {
		pages = res.Pages
	}
	var raw *string
	if !res.OCRNeeded {
		text := res.Text
		raw = &text
	}
	if res.Degraded {
		logger.Warn("ocr.degraded", "strategy", res.Strategy, "quality", res.Quality)
	}
	logger.Info("ocr.done",
		"strategy", res.Strategy,
		"quality", res.Quality,
		"ocr_needed", res.OCRNeeded,
		"cached", res.Cached,
		"attempts", len(attempts),
		"pages", pages,
	)
	return repository.StageCommit{
		To:          constants.JobStatusExtract,
		RawText:     raw,
		SetRawText:  true,
		PageCount:   &pages,
		OCRAttempts: trail,
	}, nil
}
