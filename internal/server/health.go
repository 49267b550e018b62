package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

func (s *HTTPServer) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz runs every readiness check concurrently and reports each result.
func (s *HTTPServer) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		check := s.checks[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := "ok"
			if err := check(ctx); err != nil {
				res = err.Error()
				s.logger.Warn("readyz.check_failed", "check", name, "error", err)
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := http.StatusOK
	overall := "ok"
	for _, res := range results {
		if res != "ok" {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		}
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}
