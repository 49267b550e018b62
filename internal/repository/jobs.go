package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

// StageCommit carries the artifacts a stage writes together with its status change.
type StageCommit struct {
	To          constants.JobStatus
	RawText     *string
	SetRawText  bool
	PageCount   *int
	OCRAttempts json.RawMessage
	Extraction  json.RawMessage
	Summary     json.RawMessage
}

// JobFilter narrows List.
type JobFilter struct {
	OwnerUserID string
	AgencyID    string
	Status      constants.JobStatus
	Limit       int
}

type JobRepository interface {
	Create(ctx context.Context, job *entity.ProcessingJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error)
	List(ctx context.Context, f JobFilter) ([]*entity.ProcessingJob, error)

	// Claim takes the pending stage at status from. Claiming QUEUED moves the job to OCR.
	Claim(ctx context.Context, id uuid.UUID, from constants.JobStatus, token uuid.UUID, now time.Time) (bool, error)
	Commit(ctx context.Context, id uuid.UUID, from constants.JobStatus, token uuid.UUID, c StageCommit, now time.Time) (bool, error)
	Fail(ctx context.Context, id uuid.UUID, from constants.JobStatus, token uuid.UUID, code, message string, now time.Time) (bool, error)
	FailStuck(ctx context.Context, id uuid.UUID, cutoff time.Time, code, message string, now time.Time) (bool, error)
	// Release drops a claim without moving the job, leaving its stage pending.
	Release(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error)
	Reprocess(ctx context.Context, id uuid.UUID, from, to constants.JobStatus, now time.Time) (bool, error)

	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*entity.ProcessingJob, error)
	ListPending(ctx context.Context, limit int) ([]*entity.ProcessingJob, error)
	FindByHash(ctx context.Context, ownerUserID, sha string, exclude uuid.UUID) (*entity.ProcessingJob, error)
	ListReady(ctx context.Context, ownerUserID string, exclude uuid.UUID, limit int) ([]*entity.ProcessingJob, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type jobRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewJobRepository(drv *entsql.Driver, logger *slog.Logger) JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobRepository{drv: drv, logger: logger}
}

func (r *jobRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *jobRepository) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res stdsql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	return n, nil
}

func (r *jobRepository) query(ctx context.Context, query string, args []any) ([]*entity.ProcessingJob, error) {
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ProcessingJob
	for rows.Next() {
		j, err := scanJob(&rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", common.ErrDatabase, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *jobRepository) Create(ctx context.Context, j *entity.ProcessingJob) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := dbTime(time.Now())
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.CreatedAt = dbTime(j.CreatedAt)
	j.StageEnteredAt = j.CreatedAt
	j.UpdatedAt = j.CreatedAt
	if j.Status == "" {
		j.Status = constants.JobStatusQueued
	}

	q, args := r.builder().Insert(tableJobs).
		Columns(
			"id", "owner_user_id", "agency_id", "building_id", "unit_id",
			"filename", "byte_size", "mime_type", "storage_key", "content_sha256", "page_count",
			"status", "attempt_count", "created_at", "stage_entered_at", "updated_at",
		).
		Values(
			j.ID, j.OwnerUserID, strArg(j.AgencyID), strArg(j.BuildingID), strArg(j.UnitID),
			j.Filename, j.ByteSize, j.MIMEType, j.StorageKey, j.ContentSHA256, j.PageCount,
			string(j.Status), j.AttemptCount, j.CreatedAt, j.StageEnteredAt, j.UpdatedAt,
		).Query()
	if _, err := r.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to create processing job", "job_id", j.ID, "filename", j.Filename, "error", err)
		return err
	}
	r.logger.Info("job.created", "job_id", j.ID, "owner", j.OwnerUserID, "mime", j.MIMEType, "bytes", j.ByteSize)
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	b := r.builder()
	q, args := b.Select(jobColumns...).From(b.Table(tableJobs)).Where(entsql.EQ("id", id)).Query()
	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.WrapError(common.ErrNotFound, fmt.Sprintf("job %s", id))
	}
	return jobs[0], nil
}

func (r *jobRepository) List(ctx context.Context, f JobFilter) ([]*entity.ProcessingJob, error) {
	b := r.builder()
	sel := b.Select(jobColumns...).From(b.Table(tableJobs))
	var preds []*entsql.Predicate
	switch {
	case f.OwnerUserID != "" && f.AgencyID != "":
		preds = append(preds, entsql.Or(entsql.EQ("owner_user_id", f.OwnerUserID), entsql.EQ("agency_id", f.AgencyID)))
	case f.OwnerUserID != "":
		preds = append(preds, entsql.EQ("owner_user_id", f.OwnerUserID))
	case f.AgencyID != "":
		preds = append(preds, entsql.EQ("agency_id", f.AgencyID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	q, args := sel.OrderBy(entsql.Desc("created_at")).Limit(limit).Query()
	return r.query(ctx, q, args)
}

func (r *jobRepository) Claim(ctx context.Context, id uuid.UUID, from constants.JobStatus, token uuid.UUID, now time.Time) (bool, error) {
	now = dbTime(now)
	u := r.builder().Update(tableJobs).
		Set("claim_token", token).
		Set("claimed_at", now).
		Set("updated_at", now)
	if from == constants.JobStatusQueued {
		u.Set("status", string(constants.JobStatusOCR)).
			Set("stage_entered_at", now).
			Add("attempt_count", 1)
	}
	q, args := u.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(from)),
		entsql.IsNull("claim_token"),
	)).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to claim job", "job_id", id, "status", from, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) Commit(ctx context.Context, id uuid.UUID, from constants.JobStatus, token uuid.UUID, c StageCommit, now time.Time) (bool, error) {
	now = dbTime(now)
	u := r.builder().Update(tableJobs).
		Set("status", string(c.To)).
		SetNull("claim_token").
		SetNull("claimed_at").
		Set("stage_entered_at", now).
		Set("updated_at", now)
	if c.SetRawText {
		u.Set("raw_text", strArg(c.RawText))
	}
	if c.PageCount != nil {
		u.Set("page_count", *c.PageCount)
	}
	if c.OCRAttempts != nil {
		u.Set("ocr_attempts", jsonArg(c.OCRAttempts))
	}
	if c.Extraction != nil {
		u.Set("extraction", jsonArg(c.Extraction))
	}
	if c.Summary != nil {
		u.Set("summary", jsonArg(c.Summary))
	}
	q, args := u.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(from)),
		entsql.EQ("claim_token", token),
	)).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to commit stage", "job_id", id, "from", from, "to", c.To, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) Fail(ctx context.Context, id uuid.UUID, from constants.JobStatus, token uuid.UUID, code, message string, now time.Time) (bool, error) {
	now = dbTime(now)
	q, args := r.builder().Update(tableJobs).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_code", code).
		Set("error_message", message).
		SetNull("claim_token").
		SetNull("claimed_at").
		Set("stage_entered_at", now).
		Set("updated_at", now).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(from)),
			entsql.EQ("claim_token", token),
		)).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to mark job failed", "job_id", id, "code", code, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) FailStuck(ctx context.Context, id uuid.UUID, cutoff time.Time, code, message string, now time.Time) (bool, error) {
	now = dbTime(now)
	q, args := r.builder().Update(tableJobs).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_code", code).
		Set("error_message", message).
		SetNull("claim_token").
		SetNull("claimed_at").
		Set("stage_entered_at", now).
		Set("updated_at", now).
		Where(entsql.And(
			entsql.EQ("id", id),
			stuckPredicate(dbTime(cutoff)),
		)).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to fail stuck job", "job_id", id, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) Release(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	q, args := r.builder().Update(tableJobs).
		SetNull("claim_token").
		SetNull("claimed_at").
		Set("updated_at", dbTime(now)).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("claim_token", token))).
		Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to release claim", "job_id", id, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) Reprocess(ctx context.Context, id uuid.UUID, from, to constants.JobStatus, now time.Time) (bool, error) {
	now = dbTime(now)
	u := r.builder().Update(tableJobs).
		Set("status", string(to)).
		SetNull("error_code").
		SetNull("error_message").
		SetNull("extraction").
		SetNull("summary").
		Set("stage_entered_at", now).
		Set("updated_at", now).
		Add("attempt_count", 1)
	if to == constants.JobStatusOCR {
		u.SetNull("raw_text").SetNull("ocr_attempts")
	}
	q, args := u.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(from)),
		entsql.IsNull("claim_token"),
	)).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to reprocess job", "job_id", id, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*entity.ProcessingJob, error) {
	if limit <= 0 {
		limit = 100
	}
	b := r.builder()
	q, args := b.Select(jobColumns...).From(b.Table(tableJobs)).
		Where(stuckPredicate(dbTime(cutoff))).
		OrderBy("stage_entered_at", "id").
		Limit(limit).
		Query()
	return r.query(ctx, q, args)
}

// stuckPredicate matches a pending stage that is either held by a claim older than cutoff or
// has sat unclaimed since before cutoff.
func stuckPredicate(cutoff time.Time) *entsql.Predicate {
	return entsql.And(
		entsql.In("status", pendingStatuses...),
		entsql.Or(
			entsql.And(entsql.NotNull("claim_token"), entsql.LT("claimed_at", cutoff)),
			entsql.And(entsql.IsNull("claim_token"), entsql.LT("stage_entered_at", cutoff)),
		),
	)
}

var pendingStatuses = []any{
	string(constants.JobStatusQueued), string(constants.JobStatusOCR),
	string(constants.JobStatusExtract), string(constants.JobStatusSummarise),
}

// ListPending returns unclaimed jobs that still have a stage to run, oldest first.
func (r *jobRepository) ListPending(ctx context.Context, limit int) ([]*entity.ProcessingJob, error) {
	if limit <= 0 {
		limit = 100
	}
	b := r.builder()
	q, args := b.Select(jobColumns...).From(b.Table(tableJobs)).
		Where(entsql.And(
			entsql.IsNull("claim_token"),
			entsql.In("status", pendingStatuses...),
		)).
		OrderBy("created_at").
		Limit(limit).
		Query()
	return r.query(ctx, q, args)
}

func (r *jobRepository) FindByHash(ctx context.Context, ownerUserID, sha string, exclude uuid.UUID) (*entity.ProcessingJob, error) {
	b := r.builder()
	q, args := b.Select(jobColumns...).From(b.Table(tableJobs)).
		Where(entsql.And(
			entsql.EQ("owner_user_id", ownerUserID),
			entsql.EQ("content_sha256", sha),
			entsql.EQ("status", string(constants.JobStatusReady)),
			entsql.NEQ("id", exclude),
		)).
		OrderBy("created_at").
		Limit(1).
		Query()
	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.ErrNotFound
	}
	return jobs[0], nil
}

func (r *jobRepository) ListReady(ctx context.Context, ownerUserID string, exclude uuid.UUID, limit int) ([]*entity.ProcessingJob, error) {
	if limit <= 0 {
		limit = 500
	}
	b := r.builder()
	q, args := b.Select(jobColumns...).From(b.Table(tableJobs)).
		Where(entsql.And(
			entsql.EQ("owner_user_id", ownerUserID),
			entsql.EQ("status", string(constants.JobStatusReady)),
			entsql.NEQ("id", exclude),
		)).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit).
		Query()
	return r.query(ctx, q, args)
}

func (r *jobRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	q, args := r.builder().Delete(tableJobs).Where(entsql.EQ("id", id)).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to delete job", "job_id", id, "error", err)
		return false, err
	}
	return n == 1, nil
}

// IsNotFound reports whether err is a missing-row error from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
