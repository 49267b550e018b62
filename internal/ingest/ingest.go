// Package ingest accepts documents from uploads and local directories, validates them against
// the allow-list and hands them to the pipeline.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/async"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	JobID        uuid.UUID
	Deduplicated bool
	HashHex      string
	MIMEType     string
	PageCount    int
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Submitter creates QUEUED jobs.
type Submitter interface {
	Submit(ctx context.Context, actor common.Actor, in pipeline.SubmitInput) (*entity.ProcessingJob, error)
}

// Enqueuer schedules a job for background advancing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// Upload is one document arriving at the service.
type Upload struct {
	Data           []byte
	Filename       string
	DeclaredMIME   string
	BuildingID     string
	UnitID         string
	IdempotencyKey string
}

type Service struct {
	submitter Submitter
	queue     Enqueuer
	idem      *Idempotency
	sessions  *Sessions
	maxBytes  int64
	logger    *slog.Logger
}

// NewService wires the intake path. queue, idem and sessions are optional.
func NewService(submitter Submitter, queue Enqueuer, idem *Idempotency, sessions *Sessions, maxBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMaxUploadBytes
	}
	return &Service{submitter: submitter, queue: queue, idem: idem, sessions: sessions, maxBytes: maxBytes, logger: logger}
}

const (
	maxFilenameLen = 255
	maxRefLen      = 128
)

func validateTarget(v *common.Validator, buildingID, unitID string) *common.Validator {
	return v.Field("building_id", buildingID, common.MaxLen(maxRefLen), common.NoPathSeparators).
		Field("unit_id", unitID, common.MaxLen(maxRefLen), common.NoPathSeparators)
}

func (s *Service) MaxBytes() int64 { return s.maxBytes }

func (s *Service) Sessions() *Sessions { return s.sessions }

// IssueUpload opens an upload session owned by actor.
func (s *Service) IssueUpload(ctx context.Context, actor common.Actor, sess UploadSession) (string, time.Time, error) {
	if s.sessions == nil {
		return "", time.Time{}, common.NewAppError(constants.ErrCodeNotFound, "upload sessions are not enabled", common.ErrNotFound)
	}
	v := common.NewValidator().
		Field("filename", sess.Filename, common.Required, common.NoPathSeparators, common.MaxLen(maxFilenameLen))
	validateTarget(v, sess.BuildingID, sess.UnitID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", time.Time{}, err
	}
	sess.OwnerUserID = actor.UserID
	sess.AgencyID = actor.AgencyID
	return s.sessions.Issue(ctx, sess)
}

// Upload validates and submits one document, then queues it.
func (s *Service) Upload(ctx context.Context, actor common.Actor, up Upload) (IngestionResult, error) {
	mime := DetectMIME(up.Filename, up.DeclaredMIME, up.Data)
	out := IngestionResult{SourcePath: up.Filename, MIMEType: mime}
	if err := CheckUpload(mime, int64(len(up.Data)), s.maxBytes); err != nil {
		s.logger.Warn("ingest.rejected", "filename", up.Filename, "mime", mime, "bytes", len(up.Data), "error", err)
		return out, err
	}
	if err := common.ValidateAndReturnError(validateTarget(common.NewValidator(), up.BuildingID, up.UnitID)); err != nil {
		return out, err
	}
	sum := sha256.Sum256(up.Data)
	out.HashHex = hex.EncodeToString(sum[:])

	key := strings.TrimSpace(up.IdempotencyKey)
	if key != "" && s.idem != nil {
		prior, reserved, err := s.idem.Reserve(ctx, actor.UserID, key)
		if err != nil {
			return out, err
		}
		if !reserved {
			out.JobID = prior
			out.Deduplicated = true
			s.logger.Info("ingest.idempotent_replay", "job_id", prior, "key", key)
			return out, nil
		}
	}

	pages, err := PageCount(up.Data, mime)
	if err != nil {
		s.logger.Warn("ingest.page_count_failed", "filename", up.Filename, "error", err)
	}
	out.PageCount = pages

	job, err := s.submitter.Submit(ctx, actor, pipeline.SubmitInput{
		Data:       up.Data,
		Filename:   filepath.Base(up.Filename),
		MIMEType:   mime,
		BuildingID: up.BuildingID,
		UnitID:     up.UnitID,
		PageCount:  pages,
	})
	if err != nil {
		if key != "" && s.idem != nil {
			if aerr := s.idem.Abandon(ctx, actor.UserID, key); aerr != nil {
				s.logger.Warn("ingest.idempotency_abandon_failed", "key", key, "error", aerr)
			}
		}
		return out, err
	}
	out.JobID = job.ID
	out.UploadedAt = job.CreatedAt
	if key != "" && s.idem != nil {
		if err := s.idem.Complete(ctx, actor.UserID, key, job.ID); err != nil {
			s.logger.Warn("ingest.idempotency_record_failed", "key", key, "job_id", job.ID, "error", err)
		}
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, async.Job{JobID: job.ID, SubmittedAt: job.CreatedAt, TraceID: common.RequestIDFromContext(ctx)}); err != nil {
			// the job stays QUEUED; a manual trigger or restart resume picks it up
			s.logger.Warn("ingest.enqueue_failed", "job_id", job.ID, "error", err)
		}
	}
	s.logger.Info("ingest.accepted", "job_id", job.ID, "filename", job.Filename, "mime", mime, "bytes", len(up.Data), "pages", pages)
	return out, nil
}

// RedeemUpload consumes an upload token and submits data under the session's declarations.
func (s *Service) RedeemUpload(ctx context.Context, actor common.Actor, token string, data []byte, idemKey string) (IngestionResult, error) {
	if s.sessions == nil {
		return IngestionResult{}, common.NewAppError(constants.ErrCodeNotFound, "upload sessions are not enabled", common.ErrNotFound)
	}
	sess, err := s.sessions.Redeem(ctx, actor, token)
	if err != nil {
		return IngestionResult{}, err
	}
	return s.Upload(ctx, actor, Upload{
		Data:           data,
		Filename:       sess.Filename,
		DeclaredMIME:   sess.MIMEType,
		BuildingID:     sess.BuildingID,
		UnitID:         sess.UnitID,
		IdempotencyKey: idemKey,
	})
}

// IngestPath reads one local file and uploads it. The content hash doubles as the
// idempotency key, so re-running over the same tree does not duplicate jobs.
func (s *Service) IngestPath(ctx context.Context, actor common.Actor, path, buildingID string) (IngestionResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return IngestionResult{SourcePath: path}, fmt.Errorf("abs path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return IngestionResult{SourcePath: abs}, fmt.Errorf("stat: %w", err)
	}
	if info.Size() > s.maxBytes {
		return IngestionResult{SourcePath: abs}, CheckUpload(DetectMIME(abs, "", nil), info.Size(), s.maxBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return IngestionResult{SourcePath: abs}, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)
	r, err := s.Upload(ctx, actor, Upload{
		Data:           data,
		Filename:       abs,
		BuildingID:     buildingID,
		IdempotencyKey: "sha256:" + hex.EncodeToString(sum[:]),
	})
	r.SourcePath = abs
	return r, err
}

// IngestDirectory walks root, skips hidden entries if requested, and calls IngestPath for each
// file with an accepted extension. Returns per-file results + aggregate stats.
func (s *Service) IngestDirectory(ctx context.Context, actor common.Actor, root, buildingID string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			s.logger.Debug("ingest.skip", "path", path)
			return nil
		}
		stats.Matched++

		r, err := s.IngestPath(ctx, actor, path, buildingID)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	s.logger.Info("ingest.directory.done", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}
