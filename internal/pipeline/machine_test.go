package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/async"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/compliance"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/ocr"
	"github.com/joseph-ayodele/docintake/internal/repository"
	"github.com/joseph-ayodele/docintake/internal/storage"
	"github.com/joseph-ayodele/docintake/internal/utils"
)

const fraText = `FIRE RISK ASSESSMENT
Premises: Maple Court, London SW1A 1AA
Assessment date: 3 March 2024
Assessor: Jane Doe
Issued by Safe Fire Consultants Ltd
Risk rating: moderate. Action plan attached. Evacuation strategy: stay put.
Reference No: FRA-2024-001
Compliant with BS 9999:2017.`

const invoiceText = `INVOICE
Invoice number: INV-1043
Supplier: Acme Cleaning Ltd
Date: 12 April 2024
Communal area cleaning, April.
Amount due: 450.00 GBP including VAT
Payment terms: 30 days. Bank details on request.`

var (
	owner    = common.Actor{UserID: "user-1", AgencyID: "agency-1"}
	stranger = common.Actor{UserID: "user-2"}
	operator = common.Actor{UserID: "ops", Operator: true}
)

type stubRecoverer struct {
	mu    sync.Mutex
	res   ocr.Result
	err   error
	calls int
}

func (s *stubRecoverer) Recover(ctx context.Context, _ []byte, _ string) (ocr.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	return s.res, s.err
}

func (s *stubRecoverer) setResult(res ocr.Result) {
	s.mu.Lock()
	s.res = res
	s.mu.Unlock()
}

func (s *stubRecoverer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func textResult(text string) ocr.Result {
	return ocr.Result{
		Text:     text,
		Quality:  0.9,
		Strategy: "text_layer",
		Pages:    3,
		Attempts: []entity.OCRAttempt{{Strategy: "text_layer", Outcome: entity.OCROutcomeSuccess, TextLength: len(text), Quality: 0.9}},
	}
}

type flakyStore struct {
	storage.ObjectStore
	mu   sync.Mutex
	down bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return nil, errors.New("bucket unreachable")
	}
	return f.ObjectStore.Get(ctx, key)
}

func (f *flakyStore) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, j async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, j)
	return nil
}

func (q *recordingQueue) ids() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.JobID)
	}
	return out
}

type failingMatcher struct{}

func (failingMatcher) Match(context.Context, entity.ExtractionResult, string, uuid.UUID) (entity.ComplianceAssetMatch, error) {
	return entity.ComplianceAssetMatch{}, errors.New("catalog offline")
}

type harness struct {
	machine *Machine
	jobs    repository.JobRepository
	links   *repository.ComplianceRepository
	store   *flakyStore
	ocr     *stubRecoverer
}

func newHarness(t *testing.T, matcher AssetMatcher) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	drv, err := repository.OpenSQLite(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(ctx, drv, logger))

	jobs := repository.NewJobRepository(drv, logger)
	comp := repository.NewComplianceRepository(drv, logger)
	require.NoError(t, comp.SeedAssets(ctx, "", compliance.MasterAssets))

	fs, err := storage.NewFSStore(t.TempDir(), logger)
	require.NoError(t, err)
	store := &flakyStore{ObjectStore: fs}

	rec := &stubRecoverer{res: textResult(fraText)}
	engine := extraction.NewEngine([]extraction.FieldExtractor{extraction.NewKeywordExtractor()}, extraction.Options{}, logger)
	if matcher == nil {
		fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		matcher = compliance.NewMatcher(comp, compliance.Options{LeadDays: 30, Now: func() time.Time { return fixed }}, logger)
	}
	m := NewMachine(jobs, store, rec, engine, matcher, comp, Options{}, logger)
	return &harness{machine: m, jobs: jobs, links: comp, store: store, ocr: rec}
}

func (h *harness) submit(t *testing.T, data string) *entity.ProcessingJob {
	t.Helper()
	job, err := h.machine.Submit(context.Background(), owner, SubmitInput{
		Data:       []byte(data),
		Filename:   "fra.pdf",
		MIMEType:   constants.MIMEPDF,
		BuildingID: "bldg-1",
	})
	require.NoError(t, err)
	return job
}

func decodeSummary(t *testing.T, job *entity.ProcessingJob) entity.JobSummary {
	t.Helper()
	var s entity.JobSummary
	require.NoError(t, json.Unmarshal(job.Summary, &s))
	return s
}

func TestMachine_HappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF-1.7 fire")
	assert.Equal(t, constants.JobStatusQueued, job.Status)

	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusReady, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, 3, got.PageCount)
	require.NotNil(t, got.RawText)
	assert.Nil(t, got.ErrorCode)
	assert.False(t, got.Claimed())

	res, err := decodeExtraction(got)
	require.NoError(t, err)
	assert.Equal(t, string(constants.ClassFireCertificate), res.Classification)
	assert.Equal(t, "2025-03-03", utils.StrOrEmpty(res.NextDueDate))
	assert.NoError(t, extraction.ValidateResult(res))

	sum := decodeSummary(t, got)
	require.NotNil(t, sum.Compliance)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440010", utils.StrOrEmpty(sum.Compliance.AssetID))
	assert.Equal(t, job.ID, sum.Compliance.DocumentID)
	assert.Contains(t, sum.Reminders, entity.Reminder{
		Label:  "Renew Fire Risk Assessment",
		Date:   "2025-02-01",
		Reason: "Fire Risk Assessment due on 2025-03-03",
	})
	assert.False(t, sum.PossibleDuplicate)

	links, err := h.links.LinksForJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "bldg-1", links[0].BuildingID)
	assert.Equal(t, "2025-02-01", utils.StrOrEmpty(links[0].ReminderDate))

	var attempts []entity.OCRAttempt
	require.NoError(t, json.Unmarshal(got.OCRAttempts, &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "text_layer", attempts[0].Strategy)
}

func TestMachine_AdvanceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	first, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	second, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)

	assert.Equal(t, constants.JobStatusReady, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.JSONEq(t, string(first.Summary), string(second.Summary))
	assert.Equal(t, 1, h.ocr.Calls())
}

func TestMachine_ConcurrentAdvanceRunsEachStageOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.machine.Advance(ctx, owner, job.ID)
		}()
	}
	wg.Wait()

	// a worker that lost a claim returns early, so finish whatever is left
	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusReady, got.Status)
	assert.Equal(t, 1, h.ocr.Calls())
	assert.Equal(t, 1, got.AttemptCount)
}

func TestMachine_UnreadableDocumentIsReadyWithDefault(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.ocr.res = ocr.Result{
		OCRNeeded: true,
		Level:     ocr.QualityFailed,
		Attempts: []entity.OCRAttempt{
			{Strategy: "text_layer", Outcome: entity.OCROutcomeFailure, Reason: "no text layer"},
			{Strategy: "tesseract", Outcome: entity.OCROutcomeLowQuality, TextLength: 3},
		},
	}
	job := h.submit(t, "blurry scan")

	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusReady, got.Status)
	assert.Nil(t, got.RawText)

	res, err := decodeExtraction(got)
	require.NoError(t, err)
	assert.True(t, res.OCRNeeded)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, entity.NoTextSentinel, res.TextExtracted)
	assert.Equal(t, string(constants.ClassOther), res.Classification)

	sum := decodeSummary(t, got)
	assert.True(t, sum.OCRNeeded)
	assert.Contains(t, sum.BlockingIssues, "no readable text extracted")

	var attempts []entity.OCRAttempt
	require.NoError(t, json.Unmarshal(got.OCRAttempts, &attempts))
	assert.Len(t, attempts, 2)
}

func TestMachine_RejectsUnsupportedTypeBeforeCreatingJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.machine.Submit(ctx, owner, SubmitInput{
		Data:     []byte("PK\x03\x04"),
		Filename: "lease.docx",
		MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	})
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeUnsupportedFileType, common.CodeOf(err))
	assert.ErrorIs(t, err, common.ErrUnsupportedFileType)

	listed, err := h.jobs.List(ctx, repository.JobFilter{OwnerUserID: owner.UserID})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMachine_RejectsOversizedPayload(t *testing.T) {
	h := newHarness(t, nil)
	h.machine.opts.MaxUploadBytes = 4

	_, err := h.machine.Submit(context.Background(), owner, SubmitInput{Data: []byte("12345"), MIMEType: constants.MIMEPNG})
	assert.Equal(t, constants.ErrCodePayloadTooLarge, common.CodeOf(err))
}

func TestMachine_StorageFailureThenReprocess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	h.store.setDown(true)
	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, constants.ErrCodeStorageUnavailable, utils.StrOrEmpty(got.ErrorCode))
	assert.NotEmpty(t, utils.StrOrEmpty(got.ErrorMessage))

	view, err := h.machine.Status(ctx, owner, job.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Error)
	assert.Equal(t, constants.ErrCodeStorageUnavailable, view.Error.Code)

	h.store.setDown(false)
	got, err = h.machine.Reprocess(ctx, owner, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusOCR, got.Status)
	assert.Nil(t, got.ErrorCode)
	assert.Equal(t, 2, got.AttemptCount)

	got, err = h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusReady, got.Status)
}

func TestMachine_ReprocessReusesRawTextUnlessForced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")
	_, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)

	got, err := h.machine.Reprocess(ctx, owner, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtract, got.Status)
	assert.NotNil(t, got.RawText)
	assert.Nil(t, got.Summary)

	got, err = h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusReady, got.Status)
	assert.Equal(t, 1, h.ocr.Calls())

	got, err = h.machine.Reprocess(ctx, owner, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusOCR, got.Status)
	assert.Nil(t, got.RawText)

	_, err = h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, h.ocr.Calls())
}

func TestMachine_ReprocessDropsStaleComplianceLink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")
	_, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)

	asOf := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	due, err := h.links.DueReminders(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, job.ID, due[0].JobID)

	h.ocr.setResult(textResult(invoiceText))
	_, err = h.machine.Reprocess(ctx, owner, job.ID, true)
	require.NoError(t, err)
	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusReady, got.Status)

	res, err := decodeExtraction(got)
	require.NoError(t, err)
	assert.Equal(t, string(constants.ClassInvoice), res.Classification)
	assert.Nil(t, decodeSummary(t, got).Compliance)

	links, err := h.links.LinksForJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	due, err = h.links.DueReminders(ctx, asOf)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMachine_RelinkRearmsReminder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")
	_, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)

	asOf := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	due, err := h.links.DueReminders(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, h.links.MarkNotified(ctx, due[0].ID, time.Now()))

	_, err = h.machine.Reprocess(ctx, owner, job.ID, true)
	require.NoError(t, err)
	_, err = h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)

	due, err = h.links.DueReminders(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Nil(t, due[0].NotifiedAt)
}

func TestMachine_ReprocessEnqueuesJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	q := &recordingQueue{}
	h.machine.SetEnqueuer(q)

	job := h.submit(t, "%PDF fire")
	_, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Empty(t, q.ids(), "advance does not enqueue")

	got, err := h.machine.Reprocess(ctx, owner, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusOCR, got.Status)
	assert.Equal(t, []uuid.UUID{job.ID}, q.ids())

	_, err = h.machine.Reprocess(ctx, owner, job.ID, true)
	assert.Equal(t, constants.ErrCodeConflict, common.CodeOf(err))
	assert.Len(t, q.ids(), 1, "a rejected reprocess enqueues nothing")
}

func TestMachine_IdleReprocessedJobIsStuck(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")
	_, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	got, err := h.machine.Reprocess(ctx, owner, job.ID, true)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusOCR, got.Status)
	require.False(t, got.Claimed())

	stuck, err := h.machine.ListStuck(ctx, operator)
	require.NoError(t, err)
	assert.Empty(t, stuck, "not idle for long yet")

	later := NewMachine(h.jobs, h.store, h.ocr, nil, nil, h.links, Options{
		Now: func() time.Time { return time.Now().Add(24 * time.Hour) },
	}, nil)
	stuck, err = later.ListStuck(ctx, operator)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, job.ID, stuck[0].ID)

	failed, err := later.FailStuck(ctx, operator, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	assert.Equal(t, constants.ErrCodeStageTimeout, utils.StrOrEmpty(failed.ErrorCode))
}

func TestMachine_ReprocessRejectsActiveJob(t *testing.T) {
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	_, err := h.machine.Reprocess(context.Background(), owner, job.ID, false)
	assert.Equal(t, constants.ErrCodeConflict, common.CodeOf(err))
}

func TestMachine_StuckJobTimesOutAndIsReprocessable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	// a worker claimed OCR an hour ago and never came back
	token := uuid.New()
	ok, err := h.jobs.Claim(ctx, job.ID, constants.JobStatusQueued, token, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	running, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusOCR, running.Status, "claimed elsewhere, so advance leaves it")

	_, err = h.machine.ListStuck(ctx, owner)
	assert.ErrorIs(t, err, common.ErrForbidden)

	stuck, err := h.machine.ListStuck(ctx, operator)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, job.ID, stuck[0].ID)

	failed, err := h.machine.FailStuck(ctx, operator, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	assert.Equal(t, constants.ErrCodeStageTimeout, utils.StrOrEmpty(failed.ErrorCode))

	// the late worker loses
	ok, err = h.jobs.Commit(ctx, job.ID, constants.JobStatusOCR, token, repository.StageCommit{To: constants.JobStatusExtract}, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.machine.FailStuck(ctx, operator, job.ID)
	assert.Equal(t, constants.ErrCodeConflict, common.CodeOf(err))

	_, err = h.machine.Reprocess(ctx, owner, job.ID, false)
	require.NoError(t, err)
	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusReady, got.Status)
}

func TestMachine_StatusNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	seen := []constants.JobStatus{job.Status}
	for i := 0; i < 3; i++ {
		moved, err := h.machine.step(ctx, job)
		require.NoError(t, err)
		require.True(t, moved)
		job, err = h.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		seen = append(seen, job.Status)
	}
	assert.Equal(t, []constants.JobStatus{
		constants.JobStatusQueued,
		constants.JobStatusExtract,
		constants.JobStatusSummarise,
		constants.JobStatusReady,
	}, seen)

	moved, err := h.machine.step(ctx, job)
	require.NoError(t, err)
	assert.False(t, moved, "terminal jobs have no stage")

	// replaying a stale stage against a READY job is a no-op
	moved, err = h.machine.step(ctx, &entity.ProcessingJob{ID: job.ID, Status: constants.JobStatusExtract})
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestMachine_DuplicateUploadIsFlagged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	first := h.submit(t, "%PDF same bytes")
	_, err := h.machine.Advance(ctx, owner, first.ID)
	require.NoError(t, err)

	second := h.submit(t, "%PDF same bytes")
	got, err := h.machine.Advance(ctx, owner, second.ID)
	require.NoError(t, err)

	sum := decodeSummary(t, got)
	assert.True(t, sum.PossibleDuplicate)
	require.NotNil(t, sum.DuplicateOf)
	assert.Equal(t, first.ID, *sum.DuplicateOf)

	res, err := decodeExtraction(got)
	require.NoError(t, err)
	require.NotNil(t, res.DuplicateMatchHint)
	assert.Equal(t, "FIRE RISK ASSESSMENT", res.DuplicateMatchHint.Title)
}

func TestMachine_SameTitleAndDateIsFlagged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	first := h.submit(t, "%PDF original scan")
	_, err := h.machine.Advance(ctx, owner, first.ID)
	require.NoError(t, err)

	second := h.submit(t, "%PDF rescanned copy")
	got, err := h.machine.Advance(ctx, owner, second.ID)
	require.NoError(t, err)
	assert.True(t, decodeSummary(t, got).PossibleDuplicate)
}

func TestMachine_ComplianceOutageFailsJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, failingMatcher{})
	job := h.submit(t, "%PDF fire")

	got, err := h.machine.Advance(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, constants.ErrCodeComplianceUnavailable, utils.StrOrEmpty(got.ErrorCode))
	assert.Nil(t, got.Summary)
}

func TestMachine_Ownership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job := h.submit(t, "%PDF fire")

	_, err := h.machine.Advance(ctx, stranger, job.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = h.machine.Status(ctx, stranger, job.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	assert.ErrorIs(t, h.machine.Delete(ctx, stranger, job.ID), common.ErrForbidden)

	colleague := common.Actor{UserID: "user-9", AgencyID: "agency-1"}
	view, err := h.machine.Status(ctx, colleague, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, view.ID)

	_, err = h.machine.Status(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, h.machine.Delete(ctx, owner, job.ID))
	_, err = h.machine.Status(ctx, owner, job.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMachine_SubmitRequiresIdentity(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.machine.Submit(context.Background(), common.Actor{}, SubmitInput{Data: []byte("x"), MIMEType: constants.MIMEPDF})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
