package server

import (
	"net/http"
	"strconv"

	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
)

func (s *HTTPServer) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	view, err := s.jobs.Status(r.Context(), actorOf(r), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.jobs.Delete(r.Context(), actorOf(r), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// advanceJob runs pending stages in the request and returns where the job ended up.
func (s *HTTPServer) advanceJob(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(r *http.Request) (*entity.ProcessingJob, error) {
		id, err := jobID(r)
		if err != nil {
			return nil, err
		}
		return s.jobs.Trigger(r.Context(), actorOf(r), id)
	})
}

func (s *HTTPServer) reprocessJob(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(r *http.Request) (*entity.ProcessingJob, error) {
		id, err := jobID(r)
		if err != nil {
			return nil, err
		}
		force := false
		if v := r.URL.Query().Get("force"); v != "" {
			if force, err = strconv.ParseBool(v); err != nil {
				return nil, invalid("force must be a boolean")
			}
		}
		return s.jobs.Reprocess(r.Context(), actorOf(r), id, force)
	})
}

func (s *HTTPServer) failStuck(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(r *http.Request) (*entity.ProcessingJob, error) {
		id, err := jobID(r)
		if err != nil {
			return nil, err
		}
		return s.jobs.FailStuck(r.Context(), actorOf(r), id)
	})
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, fn func(*http.Request) (*entity.ProcessingJob, error)) {
	job, err := fn(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline.ViewOf(job))
}

func (s *HTTPServer) listStuck(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListStuck(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	out := make([]pipeline.JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, pipeline.ViewOf(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}
