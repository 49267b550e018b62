package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/ingest"
)

// multipart framing allowance on top of the file cap
const formOverhead = 1 << 20

type acceptedResponse struct {
	JobID        uuid.UUID           `json:"job_id"`
	Status       constants.JobStatus `json:"status"`
	Deduplicated bool                `json:"deduplicated"`
	MIMEType     string              `json:"mime_type"`
	PageCount    int                 `json:"page_count"`
}

func tooLarge(limit int64) error {
	return common.NewAppError(constants.ErrCodePayloadTooLarge,
		fmt.Sprintf("upload exceeds the %d byte limit", limit), common.ErrPayloadTooLarge)
}

// readCapped reads at most limit+1 bytes so an oversized body is detectable without buffering it whole.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge(limit)
		}
		return nil, invalid("could not read upload body")
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(limit)
	}
	return data, nil
}

func (s *HTTPServer) accepted(w http.ResponseWriter, res ingest.IngestionResult) {
	w.Header().Set("Location", "/v1/jobs/"+res.JobID.String())
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:        res.JobID,
		Status:       constants.JobStatusQueued,
		Deduplicated: res.Deduplicated,
		MIMEType:     res.MIMEType,
		PageCount:    res.PageCount,
	})
}

// postDocument accepts a multipart upload with a "file" part.
func (s *HTTPServer) postDocument(w http.ResponseWriter, r *http.Request) {
	limit := s.intake.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, s.logger, tooLarge(limit))
			return
		}
		writeError(w, s.logger, invalid("expected a multipart form with a file field"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.logger, invalid("file field is required"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := readCapped(file, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	res, err := s.intake.Upload(r.Context(), actorOf(r), ingest.Upload{
		Data:           data,
		Filename:       header.Filename,
		DeclaredMIME:   header.Header.Get("Content-Type"),
		BuildingID:     strings.TrimSpace(r.FormValue("building_id")),
		UnitID:         strings.TrimSpace(r.FormValue("unit_id")),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.accepted(w, res)
}

type uploadRequest struct {
	Filename   string `json:"filename"`
	MIMEType   string `json:"mime_type"`
	BuildingID string `json:"building_id"`
	UnitID     string `json:"unit_id"`
}

type uploadResponse struct {
	Token     string    `json:"token"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// postUpload opens a one-shot upload session.
func (s *HTTPServer) postUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, s.logger, invalid("request body must be JSON"))
		return
	}
	token, expires, err := s.intake.IssueUpload(r.Context(), actorOf(r), ingest.UploadSession{
		Filename:   req.Filename,
		MIMEType:   req.MIMEType,
		BuildingID: req.BuildingID,
		UnitID:     req.UnitID,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		Token:     token,
		UploadURL: "/v1/uploads/" + token,
		ExpiresAt: expires.UTC(),
	})
}

// putUpload redeems a session token with the raw document bytes.
func (s *HTTPServer) putUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.intake.MaxBytes()
	if r.ContentLength > limit {
		writeError(w, s.logger, tooLarge(limit))
		return
	}
	data, err := readCapped(http.MaxBytesReader(w, r.Body, limit+1), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.intake.RedeemUpload(r.Context(), actorOf(r), chi.URLParam(r, "token"), data, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.accepted(w, res)
}
