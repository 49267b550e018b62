package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/repository"
)

// dueReminders lists reminders dated on or before as_of (default today). Operators only.
func (s *HTTPServer) dueReminders(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	if !actor.Operator {
		writeError(w, s.logger, common.NewAppError(constants.ErrCodeForbidden, "operator access required", common.ErrForbidden))
		return
	}
	asOf := time.Now().UTC()
	if v := strings.TrimSpace(r.URL.Query().Get("as_of")); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, s.logger, invalid("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = t
	}
	links, err := s.reminders.DueReminders(r.Context(), asOf)
	if err != nil {
		writeError(w, s.logger, common.NewAppError(constants.ErrCodeComplianceUnavailable, "could not list reminders", err))
		return
	}
	if links == nil {
		links = []entity.ComplianceLink{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"as_of": asOf.Format(time.DateOnly), "reminders": links})
}

// exportJobs streams the caller's jobs as an XLSX workbook.
func (s *HTTPServer) exportJobs(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	f := repository.JobFilter{OwnerUserID: actor.UserID, AgencyID: actor.AgencyID}
	if actor.Operator {
		f = repository.JobFilter{}
	}
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		st := constants.JobStatus(strings.ToUpper(v))
		if !st.Valid() {
			writeError(w, s.logger, invalid("unknown status "+v))
			return
		}
		f.Status = st
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, s.logger, invalid("limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	data, err := s.exporter.ExportJobsXLSX(r.Context(), f)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
