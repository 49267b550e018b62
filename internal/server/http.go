package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/ingest"
	"github.com/joseph-ayodele/docintake/internal/metrics"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
	"github.com/joseph-ayodele/docintake/internal/repository"
)

// JobService is the job state machine as seen by callers.
type JobService interface {
	Trigger(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error)
	Reprocess(ctx context.Context, actor common.Actor, id uuid.UUID, force bool) (*entity.ProcessingJob, error)
	Status(ctx context.Context, actor common.Actor, id uuid.UUID) (pipeline.JobView, error)
	ListStuck(ctx context.Context, actor common.Actor) ([]*entity.ProcessingJob, error)
	FailStuck(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.ProcessingJob, error)
	Delete(ctx context.Context, actor common.Actor, id uuid.UUID) error
}

// Intake accepts uploads.
type Intake interface {
	Upload(ctx context.Context, actor common.Actor, up ingest.Upload) (ingest.IngestionResult, error)
	IssueUpload(ctx context.Context, actor common.Actor, sess ingest.UploadSession) (string, time.Time, error)
	RedeemUpload(ctx context.Context, actor common.Actor, token string, data []byte, idemKey string) (ingest.IngestionResult, error)
	MaxBytes() int64
}

// ReminderLister lists unnotified reminders.
type ReminderLister interface {
	DueReminders(ctx context.Context, asOf time.Time) ([]entity.ComplianceLink, error)
}

// Exporter renders job reports.
type Exporter interface {
	ExportJobsXLSX(ctx context.Context, f repository.JobFilter) ([]byte, error)
}

// Check is one readiness probe.
type Check func(ctx context.Context) error

type HTTPConfig struct {
	RateLimit    float64
	RateBurst    int
	CheckTimeout time.Duration
}

// HTTPServer serves the REST surface.
type HTTPServer struct {
	jobs      JobService
	intake    Intake
	reminders ReminderLister
	exporter  Exporter
	checks    map[string]Check
	cfg       HTTPConfig
	logger    *slog.Logger
}

func NewHTTPServer(jobs JobService, intake Intake, reminders ReminderLister, exporter Exporter, checks map[string]Check, cfg HTTPConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 3 * time.Second
	}
	return &HTTPServer{
		jobs:      jobs,
		intake:    intake,
		reminders: reminders,
		exporter:  exporter,
		checks:    checks,
		cfg:       cfg,
		logger:    logger,
	}
}

// Routes builds the chi router.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(NewIPRateLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst).Middleware)
		}
		r.Use(identify)

		r.Post("/documents", s.postDocument)
		r.Post("/uploads", s.postUpload)
		r.Put("/uploads/{token}", s.putUpload)

		r.Get("/jobs/stuck", s.listStuck)
		r.Get("/jobs/{id}", s.getJob)
		r.Delete("/jobs/{id}", s.deleteJob)
		r.Post("/jobs/{id}/advance", s.advanceJob)
		r.Post("/jobs/{id}/reprocess", s.reprocessJob)
		r.Post("/jobs/{id}/fail-stuck", s.failStuck)

		r.Get("/reminders/due", s.dueReminders)
		r.Get("/reports/jobs.xlsx", s.exportJobs)
	})
	return r
}

func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}

func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HttpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Info("http.request",
			"request_id", common.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// identify reads the gateway-forwarded identity headers.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFromHeaders(r.Header.Get("X-User-ID"), r.Header.Get("X-Agency-ID"), r.Header.Get("X-Operator"))
		if actor.UserID == "" && !actor.Operator {
			writeError(w, nil, common.NewAppError(constants.ErrCodeForbidden, "missing user identity", common.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), actor)))
	})
}

// ActorFromHeaders builds an actor from forwarded identity values.
func ActorFromHeaders(userID, agencyID, operator string) common.Actor {
	op, _ := strconv.ParseBool(strings.TrimSpace(operator))
	return common.Actor{
		UserID:   strings.TrimSpace(userID),
		AgencyID: strings.TrimSpace(agencyID),
		Operator: op,
	}
}

func actorOf(r *http.Request) common.Actor {
	a, _ := common.ActorFromContext(r.Context())
	return a
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPStatus maps an error code onto a response status.
func HTTPStatus(code string) int {
	switch code {
	case constants.ErrCodeUnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case constants.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case constants.ErrCodeNotFound:
		return http.StatusNotFound
	case constants.ErrCodeForbidden:
		return http.StatusForbidden
	case constants.ErrCodeConflict:
		return http.StatusConflict
	case constants.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case constants.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case constants.ErrCodeStorageUnavailable, constants.ErrCodeComplianceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := common.CodeOf(err)
	status := HTTPStatus(code)
	msg := common.MessageOf(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("http.error", "code", code, "error", err)
		}
		if code == constants.ErrCodeInternal {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func invalid(msg string) error {
	return common.NewAppError(constants.ErrCodeInvalidInput, msg, common.ErrInvalidInput)
}

func jobID(r *http.Request) (uuid.UUID, error) {
	return common.ParseID("id", chi.URLParam(r, "id"))
}
