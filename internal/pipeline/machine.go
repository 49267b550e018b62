// Package pipeline drives a processing job through QUEUED → OCR → EXTRACT → SUMMARISE → READY.
//
// Every transition is a conditional update against the job row: a worker claims the pending
// stage, runs it, and commits with the claim token. Losing a race at either step is a no-op,
// so Advance can be called any number of times from any number of places.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/async"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/compliance"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/metrics"
	"github.com/joseph-ayodele/docintake/internal/ocr"
	"github.com/joseph-ayodele/docintake/internal/repository"
	"github.com/joseph-ayodele/docintake/internal/storage"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

// DefaultStuckAfter is how long a claim may be held before the job counts as stuck.
const DefaultStuckAfter = 30 * time.Minute

// TextRecoverer runs the OCR fallback chain.
type TextRecoverer interface {
	Recover(ctx context.Context, data []byte, mime string) (ocr.Result, error)
}

// Extractor classifies and extracts fields from recovered text.
type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) (entity.ExtractionResult, extraction.Provenance, error)
}

// AssetMatcher links an extraction result to a compliance asset.
type AssetMatcher interface {
	Match(ctx context.Context, res entity.ExtractionResult, buildingID string, documentID uuid.UUID) (entity.ComplianceAssetMatch, error)
}

// Enqueuer hands a job to the background workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

type Options struct {
	StuckAfter     time.Duration
	MaxUploadBytes int64
	Now            func() time.Time
}

// Machine owns job transitions.
type Machine struct {
	jobs    repository.JobRepository
	store   storage.ObjectStore
	ocr     TextRecoverer
	extract Extractor
	matcher AssetMatcher
	sink    compliance.Sink
	queue   Enqueuer
	opts    Options
	logger  *slog.Logger
}

func NewMachine(
	jobs repository.JobRepository,
	store storage.ObjectStore,
	recoverer TextRecoverer,
	extractor Extractor,
	matcher AssetMatcher,
	sink compliance.Sink,
	opts Options,
	logger *slog.Logger,
) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = DefaultStuckAfter
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = constants.DefaultMaxUploadBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		jobs:    jobs,
		store:   store,
		ocr:     recoverer,
		extract: extractor,
		matcher: matcher,
		sink:    sink,
		opts:    opts,
		logger:  logger,
	}
}

// SetEnqueuer lets Reprocess hand re-entered jobs to q. The queue is built on top of the
// machine, so it is attached after construction.
func (m *Machine) SetEnqueuer(q Enqueuer) {
	m.queue = q
}

// SubmitInput is one accepted upload.
type SubmitInput struct {
	Data       []byte
	Filename   string
	MIMEType   string
	BuildingID string
	UnitID     string
	PageCount  int
}

// Submit stores the bytes and creates a QUEUED job. Inputs outside the allow-list or over the
// size cap are rejected before anything is written.
func (m *Machine) Submit(ctx context.Context, actor common.Actor, in SubmitInput) (*entity.ProcessingJob, error) {
	if actor.UserID == "" {
		return nil, common.NewAppError(constants.ErrCodeForbidden, "missing user identity", common.ErrUnauthorized)
	}
	mt := constants.NormalizeMIME(in.MIMEType)
	if !constants.IsAllowedMIME(mt) {
		return nil, common.NewAppError(constants.ErrCodeUnsupportedFileType, "unsupported file type", common.ErrUnsupportedFileType)
	}
	if len(in.Data) == 0 {
		return nil, common.NewAppError(constants.ErrCodeInvalidInput, "empty file", common.ErrInvalidInput)
	}
	if int64(len(in.Data)) > m.opts.MaxUploadBytes {
		return nil, common.NewAppError(constants.ErrCodePayloadTooLarge,
			fmt.Sprintf("file exceeds %d bytes", m.opts.MaxUploadBytes), common.ErrPayloadTooLarge)
	}
	filename := in.Filename
	if filename == "" {
		filename = "upload" + constants.ExtForMIME(mt)
	}

	sum := sha256.Sum256(in.Data)
	sha := hex.EncodeToString(sum[:])
	key := "documents/" + sha + constants.ExtForMIME(mt)
	if err := m.store.Put(ctx, key, in.Data, mt); err != nil {
		m.logger.Error("job.submit.storage_failed", "key", key, "error", err)
		return nil, common.NewAppError(constants.ErrCodeStorageUnavailable, "object store unavailable", err)
	}

	job := &entity.ProcessingJob{
		OwnerUserID:   actor.UserID,
		AgencyID:      utils.StrPtr(actor.AgencyID),
		BuildingID:    utils.StrPtr(in.BuildingID),
		UnitID:        utils.StrPtr(in.UnitID),
		Filename:      filename,
		ByteSize:      int64(len(in.Data)),
		MIMEType:      mt,
		StorageKey:    key,
		ContentSHA256: sha,
		PageCount:     in.PageCount,
		Status:        constants.JobStatusQueued,
		CreatedAt:     m.opts.Now(),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, common.NewAppError(constants.ErrCodeStoreWriteFailed, "could not record job", err)
	}
	metrics.IncTransition("", string(constants.JobStatusQueued))
	return job, nil
}

// Advance runs pending stages until the job is terminal or another worker holds it.
func (m *Machine) Advance(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error) {
	job, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	for {
		if job.Status.Terminal() || job.Claimed() {
			return job, nil
		}
		moved, err := m.step(ctx, job)
		if err != nil {
			return nil, err
		}
		job, err = m.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !moved {
			return job, nil
		}
	}
}

// Trigger is the manual "advance now" entry point.
func (m *Machine) Trigger(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error) {
	m.logger.Info("job.trigger", "job_id", id, "actor", actor.UserID)
	return m.Advance(ctx, actor, id)
}

// step claims and runs the single pending stage of job. It reports whether this call moved
// the job; false means another worker won the claim or the commit.
func (m *Machine) step(ctx context.Context, job *entity.ProcessingJob) (bool, error) {
	from := job.Status
	if from.Terminal() || !from.Valid() {
		return false, nil
	}
	stage := from
	if from == constants.JobStatusQueued {
		stage = constants.JobStatusOCR
	}
	token := uuid.New()
	ok, err := m.jobs.Claim(ctx, job.ID, from, token, m.opts.Now())
	if err != nil {
		return false, common.NewAppError(constants.ErrCodeStoreWriteFailed, "could not claim job", err)
	}
	if !ok {
		m.logger.Debug("job.claim.lost", "job_id", job.ID, "status", from)
		return false, nil
	}
	if from == constants.JobStatusQueued {
		metrics.IncTransition(string(from), string(stage))
	}

	logger := m.logger.With("job_id", job.ID, "stage", stage)
	start := time.Now()
	commit, runErr := m.run(ctx, stage, job, logger)
	elapsed := time.Since(start)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
			metrics.ObserveStage(string(stage), "released", elapsed)
			m.release(job.ID, token, logger)
			return false, ctx.Err()
		}
		code, msg := failureOf(runErr)
		metrics.ObserveStage(string(stage), "failed", elapsed)
		logger.Error("job.stage.failed", "code", code, "error", runErr, "elapsed_ms", elapsed.Milliseconds())
		return m.fail(job.ID, stage, token, code, msg, logger), nil
	}

	ok, err = m.jobs.Commit(ctx, job.ID, stage, token, commit, m.opts.Now())
	if err != nil {
		metrics.ObserveStage(string(stage), "failed", elapsed)
		logger.Error("job.stage.commit_failed", "error", err)
		return m.fail(job.ID, stage, token, constants.ErrCodeStoreWriteFailed, "could not commit stage result", logger), nil
	}
	if !ok {
		metrics.ObserveStage(string(stage), "lost", elapsed)
		logger.Warn("job.stage.commit_lost", "elapsed_ms", elapsed.Milliseconds())
		return false, nil
	}
	metrics.ObserveStage(string(stage), "ok", elapsed)
	metrics.IncTransition(string(stage), string(commit.To))
	logger.Info("job.stage.commit", "to", commit.To, "elapsed_ms", elapsed.Milliseconds())
	return true, nil
}

func (m *Machine) run(ctx context.Context, stage constants.JobStatus, job *entity.ProcessingJob, logger *slog.Logger) (repository.StageCommit, error) {
	switch stage {
	case constants.JobStatusOCR:
		return m.runOCR(ctx, job, logger)
	case constants.JobStatusExtract:
		return m.runExtract(ctx, job, logger)
	case constants.JobStatusSummarise:
		return m.runSummarise(ctx, job, logger)
	}
	return repository.StageCommit{}, common.NewAppError(constants.ErrCodeInternal, fmt.Sprintf("no stage for status %s", stage), nil)
}

// fail writes FAILED under the claim. It uses a detached context so an expired request
// deadline still records the reason.
func (m *Machine) fail(id uuid.UUID, stage constants.JobStatus, token uuid.UUID, code, msg string, logger *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := m.jobs.Fail(ctx, id, stage, token, code, msg, m.opts.Now())
	if err != nil {
		logger.Error("job.fail.write_failed", "code", code, "error", err)
		return false
	}
	if ok {
		metrics.IncTransition(string(stage), string(constants.JobStatusFailed))
	}
	return ok
}

func (m *Machine) release(id uuid.UUID, token uuid.UUID, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.jobs.Release(ctx, id, token, m.opts.Now()); err != nil {
		logger.Error("job.release.failed", "error", err)
		return
	}
	logger.Info("job.stage.released")
}

// failureOf maps a stage error to the code and message recorded on the job.
func failureOf(err error) (string, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return constants.ErrCodeStageTimeout, "stage deadline exceeded"
	}
	var ae *common.AppError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code, err.Error()
	}
	return constants.ErrCodeInternal, err.Error()
}

// Reprocess re-enters a terminal job. A cached raw text skips OCR unless force is set.
func (m *Machine) Reprocess(ctx context.Context, actor common.Actor, id uuid.UUID, force bool) (*entity.ProcessingJob, error) {
	job, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() || job.Claimed() {
		return nil, common.NewAppError(constants.ErrCodeConflict,
			fmt.Sprintf("job is %s; only READY or FAILED jobs can be reprocessed", job.Status), common.ErrConflict)
	}
	to := constants.JobStatusOCR
	if job.RawText != nil && !force {
		to = constants.JobStatusExtract
	}
	ok, err := m.jobs.Reprocess(ctx, id, job.Status, to, m.opts.Now())
	if err != nil {
		return nil, common.NewAppError(constants.ErrCodeStoreWriteFailed, "could not reprocess job", err)
	}
	if !ok {
		return nil, common.NewAppError(constants.ErrCodeConflict, "job changed while reprocessing", common.ErrConflict)
	}
	metrics.IncTransition(string(job.Status), string(to))
	m.logger.Info("job.reprocess", "job_id", id, "from", job.Status, "to", to, "force", force)
	got, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.queue != nil {
		if err := m.queue.Enqueue(ctx, async.Job{JobID: id, SubmittedAt: m.opts.Now(), TraceID: common.RequestIDFromContext(ctx)}); err != nil {
			// still pending; ListStuck reports it once StuckAfter passes
			m.logger.Warn("job.reprocess.enqueue_failed", "job_id", id, "error", err)
		}
	}
	return got, nil
}

// Status returns the caller-facing view of a job.
func (m *Machine) Status(ctx context.Context, actor common.Actor, id uuid.UUID) (JobView, error) {
	job, err := m.load(ctx, actor, id)
	if err != nil {
		return JobView{}, err
	}
	return ViewOf(job), nil
}

// ListStuck returns pending jobs that have not moved for StuckAfter: either a worker holds a
// stale claim or nothing ever picked the stage up.
func (m *Machine) ListStuck(ctx context.Context, actor common.Actor) ([]*entity.ProcessingJob, error) {
	if !actor.Operator && !actor.System {
		return nil, common.NewAppError(constants.ErrCodeForbidden, "operator access required", common.ErrForbidden)
	}
	return m.jobs.ListStuck(ctx, m.opts.Now().Add(-m.opts.StuckAfter), 0)
}

// FailStuck fails a job ListStuck would report, recording STAGE_TIMEOUT. A stale claim is
// broken, so the original worker's late commit finds no matching claim and is dropped.
func (m *Machine) FailStuck(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error) {
	if !actor.Operator && !actor.System {
		return nil, common.NewAppError(constants.ErrCodeForbidden, "operator access required", common.ErrForbidden)
	}
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("stage %s made no progress for %s", job.Status, m.opts.StuckAfter)
	ok, err := m.jobs.FailStuck(ctx, id, m.opts.Now().Add(-m.opts.StuckAfter), constants.ErrCodeStageTimeout, msg, m.opts.Now())
	if err != nil {
		return nil, common.NewAppError(constants.ErrCodeStoreWriteFailed, "could not fail job", err)
	}
	if !ok {
		return nil, common.NewAppError(constants.ErrCodeConflict, "job is not stuck", common.ErrConflict)
	}
	metrics.IncTransition(string(job.Status), string(constants.JobStatusFailed))
	m.logger.Warn("job.fail_stuck", "job_id", id, "stage", job.Status, "actor", actor.UserID)
	return m.jobs.Get(ctx, id)
}

// Delete removes a job and its compliance link. The stored object is content addressed and
// may back other jobs, so it stays.
func (m *Machine) Delete(ctx context.Context, actor common.Actor, id uuid.UUID) error {
	if _, err := m.load(ctx, actor, id); err != nil {
		return err
	}
	ok, err := m.jobs.Delete(ctx, id)
	if err != nil {
		return common.NewAppError(constants.ErrCodeStoreWriteFailed, "could not delete job", err)
	}
	if !ok {
		return common.WrapError(common.ErrNotFound, fmt.Sprintf("job %s", id))
	}
	m.logger.Info("job.deleted", "job_id", id, "actor", actor.UserID)
	return nil
}

// load fetches a job the actor may act on.
func (m *Machine) load(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Operator && !actor.Owns(job.OwnerUserID, job.AgencyIDValue()) {
		return nil, common.NewAppError(constants.ErrCodeForbidden, "job belongs to another account", common.ErrForbidden)
	}
	return job, nil
}
