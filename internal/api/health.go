package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// healthCheckTimeout bounds each component probe.
const healthCheckTimeout = 5 * time.Second

// Health status values.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Subscribers   int               `json:"subscribers"`
	Checks        map[string]string `json:"checks,omitempty"`
	Runtime       RuntimeStats      `json:"runtime"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth probes every registered component. Any failing probe turns
// the response into 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        healthOK,
		Version:       s.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Count()
	}

	if len(s.checks) > 0 {
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Checks = make(map[string]string, len(names))
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()

			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = healthDegraded
				continue
			}
			resp.Checks[name] = healthOK
		}
	}

	status := http.StatusOK
	if resp.Status != healthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
