package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/ingest"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
	"github.com/joseph-ayodele/docintake/internal/repository"
)

type fakeJobs struct {
	job       *entity.ProcessingJob
	err       error
	lastActor common.Actor
	lastForce bool
}

func (f *fakeJobs) Trigger(_ context.Context, a common.Actor, _ uuid.UUID) (*entity.ProcessingJob, error) {
	f.lastActor = a
	return f.job, f.err
}

func (f *fakeJobs) Reprocess(_ context.Context, a common.Actor, _ uuid.UUID, force bool) (*entity.ProcessingJob, error) {
	f.lastActor, f.lastForce = a, force
	return f.job, f.err
}

func (f *fakeJobs) Status(_ context.Context, a common.Actor, _ uuid.UUID) (pipeline.JobView, error) {
	f.lastActor = a
	if f.err != nil {
		return pipeline.JobView{}, f.err
	}
	return pipeline.ViewOf(f.job), nil
}

func (f *fakeJobs) ListStuck(_ context.Context, a common.Actor) ([]*entity.ProcessingJob, error) {
	if !a.Operator {
		return nil, common.NewAppError(constants.ErrCodeForbidden, "operator access required", common.ErrForbidden)
	}
	return []*entity.ProcessingJob{f.job}, nil
}

func (f *fakeJobs) FailStuck(_ context.Context, _ common.Actor, _ uuid.UUID) (*entity.ProcessingJob, error) {
	return f.job, f.err
}

func (f *fakeJobs) Delete(_ context.Context, a common.Actor, _ uuid.UUID) error {
	f.lastActor = a
	return f.err
}

type fakeIntake struct {
	maxBytes int64
	uploads  []ingest.Upload
	err      error
	tokens   map[string]ingest.UploadSession
}

func (f *fakeIntake) MaxBytes() int64 { return f.maxBytes }

func (f *fakeIntake) Upload(_ context.Context, _ common.Actor, up ingest.Upload) (ingest.IngestionResult, error) {
	if f.err != nil {
		return ingest.IngestionResult{}, f.err
	}
	mime := ingest.DetectMIME(up.Filename, up.DeclaredMIME, up.Data)
	if err := ingest.CheckUpload(mime, int64(len(up.Data)), f.maxBytes); err != nil {
		return ingest.IngestionResult{}, err
	}
	f.uploads = append(f.uploads, up)
	return ingest.IngestionResult{JobID: uuid.New(), MIMEType: mime, PageCount: 1}, nil
}

func (f *fakeIntake) IssueUpload(_ context.Context, a common.Actor, sess ingest.UploadSession) (string, time.Time, error) {
	sess.OwnerUserID = a.UserID
	token := uuid.NewString()
	f.tokens[token] = sess
	return token, time.Now().Add(time.Minute), nil
}

func (f *fakeIntake) RedeemUpload(ctx context.Context, a common.Actor, token string, data []byte, key string) (ingest.IngestionResult, error) {
	sess, ok := f.tokens[token]
	if !ok {
		return ingest.IngestionResult{}, common.NewAppError(constants.ErrCodeNotFound, "upload token is unknown", common.ErrNotFound)
	}
	delete(f.tokens, token)
	return f.Upload(ctx, a, ingest.Upload{Data: data, Filename: sess.Filename, DeclaredMIME: sess.MIMEType, IdempotencyKey: key})
}

type fakeReminders struct{ asOf time.Time }

func (f *fakeReminders) DueReminders(_ context.Context, asOf time.Time) ([]entity.ComplianceLink, error) {
	f.asOf = asOf
	return []entity.ComplianceLink{{ID: 1, AssetID: "a1", BuildingID: "b1"}}, nil
}

type fakeExporter struct{ filter repository.JobFilter }

func (f *fakeExporter) ExportJobsXLSX(_ context.Context, fl repository.JobFilter) ([]byte, error) {
	f.filter = fl
	return []byte("PK-xlsx"), nil
}

type harness struct {
	jobs      *fakeJobs
	intake    *fakeIntake
	reminders *fakeReminders
	exporter  *fakeExporter
	handler   http.Handler
}

func newHarness(t *testing.T, checks map[string]Check) *harness {
	t.Helper()
	h := &harness{
		jobs: &fakeJobs{job: &entity.ProcessingJob{
			ID:          uuid.New(),
			OwnerUserID: "alice",
			Filename:    "fra.pdf",
			Status:      constants.JobStatusReady,
		}},
		intake:    &fakeIntake{maxBytes: 1024, tokens: map[string]ingest.UploadSession{}},
		reminders: &fakeReminders{},
		exporter:  &fakeExporter{},
	}
	srv := NewHTTPServer(h.jobs, h.intake, h.reminders, h.exporter, checks, HTTPConfig{}, nil)
	h.handler = srv.Routes()
	return h
}

func (h *harness) do(req *http.Request, user string) *httptest.ResponseRecorder {
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("building_id", "b1"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPostDocumentAccepted(t *testing.T) {
	h := newHarness(t, nil)
	body, ct := multipartBody(t, "fra.pdf", "application/pdf", []byte("%PDF-1.4 test"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Idempotency-Key", "k1")

	w := h.do(req, "alice")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.JobID)
	assert.Equal(t, constants.JobStatusQueued, resp.Status)
	assert.Equal(t, "/v1/jobs/"+resp.JobID.String(), w.Header().Get("Location"))
	require.Len(t, h.intake.uploads, 1)
	assert.Equal(t, "b1", h.intake.uploads[0].BuildingID)
	assert.Equal(t, "k1", h.intake.uploads[0].IdempotencyKey)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestPostDocumentRejections(t *testing.T) {
	h := newHarness(t, nil)

	body, ct := multipartBody(t, "lease.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK\x03\x04"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	w := h.do(req, "alice")
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, constants.ErrCodeUnsupportedFileType, decodeError(t, w).Code)

	body, ct = multipartBody(t, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 2048))
	req = httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	w = h.do(req, "alice")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, constants.ErrCodePayloadTooLarge, decodeError(t, w).Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader("not a form"))
	req.Header.Set("Content-Type", "text/plain")
	w = h.do(req, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, h.intake.uploads)
}

func TestMissingIdentityIsForbidden(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, constants.ErrCodeForbidden, decodeError(t, w).Code)
}

func TestUploadSessionFlow(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", strings.NewReader(`{"filename":"gas.pdf","building_id":"b1"}`))
	w := h.do(req, "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sess uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "/v1/uploads/"+sess.Token, sess.UploadURL)

	put := func() *httptest.ResponseRecorder {
		return h.do(httptest.NewRequest(http.MethodPut, sess.UploadURL, bytes.NewReader([]byte("%PDF-1.7 body"))), "alice")
	}
	w = put()
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	w = put()
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutUploadTooLarge(t *testing.T) {
	h := newHarness(t, nil)
	h.intake.tokens["t1"] = ingest.UploadSession{Filename: "a.pdf"}
	w := h.do(httptest.NewRequest(http.MethodPut, "/v1/uploads/t1", bytes.NewReader(bytes.Repeat([]byte("x"), 4096))), "alice")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGetJob(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+h.jobs.job.ID.String(), nil)
	req.Header.Set("X-Agency-ID", "agency-1")
	w := h.do(req, "alice")
	require.Equal(t, http.StatusOK, w.Code)

	var view pipeline.JobView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, h.jobs.job.ID, view.ID)
	assert.Equal(t, constants.JobStatusReady, view.Status)
	assert.Equal(t, common.Actor{UserID: "alice", AgencyID: "agency-1"}, h.jobs.lastActor)

	w = h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/not-a-uuid", nil), "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmtNotFound(), http.StatusNotFound},
		{common.NewAppError(constants.ErrCodeForbidden, "job belongs to another account", common.ErrForbidden), http.StatusForbidden},
		{common.NewAppError(constants.ErrCodeConflict, "job is QUEUED", common.ErrConflict), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newHarness(t, nil)
		h.jobs.err = tc.err
		w := h.do(httptest.NewRequest(http.MethodPost, "/v1/jobs/"+uuid.NewString()+"/reprocess", nil), "alice")
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func fmtNotFound() error {
	return errors.Join(errors.New("job x"), common.ErrNotFound)
}

func TestReprocessForceFlag(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(httptest.NewRequest(http.MethodPost, "/v1/jobs/"+uuid.NewString()+"/reprocess?force=true", nil), "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.jobs.lastForce)

	w = h.do(httptest.NewRequest(http.MethodPost, "/v1/jobs/"+uuid.NewString()+"/reprocess?force=maybe", nil), "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteJob(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+uuid.NewString(), nil), "alice")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOperatorRoutes(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/stuck", nil), "alice")
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/stuck", nil)
	req.Header.Set("X-Operator", "true")
	w = h.do(req, "ops")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), h.jobs.job.ID.String())

	w = h.do(httptest.NewRequest(http.MethodGet, "/v1/reminders/due", nil), "alice")
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/reminders/due?as_of=2025-02-01", nil)
	req.Header.Set("X-Operator", "1")
	w = h.do(req, "ops")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-02-01", h.reminders.asOf.Format(time.DateOnly))

	req = httptest.NewRequest(http.MethodGet, "/v1/reminders/due?as_of=02/01/2025", nil)
	req.Header.Set("X-Operator", "1")
	w = h.do(req, "ops")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportScopesToCaller(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/jobs.xlsx?status=ready", nil)
	req.Header.Set("X-Agency-ID", "ag")
	w := h.do(req, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK-xlsx", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "jobs.xlsx")
	assert.Equal(t, repository.JobFilter{OwnerUserID: "alice", AgencyID: "ag", Status: constants.JobStatusReady}, h.exporter.filter)

	w = h.do(httptest.NewRequest(http.MethodGet, "/v1/reports/jobs.xlsx?status=bogus", nil), "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	h := newHarness(t, map[string]Check{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	w := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(httptest.NewRequest(http.MethodGet, "/readyz", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Checks["db"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	w = h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	h := newHarness(t, nil)
	srv := NewHTTPServer(h.jobs, h.intake, h.reminders, h.exporter, nil, HTTPConfig{RateLimit: 0.001, RateBurst: 2}, nil)
	handler := srv.Routes()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+h.jobs.job.ID.String(), nil)
		req.Header.Set("X-User-ID", "alice")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
