package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/buttrest/internal/gateway"
)

// healthCheckTimeout bounds each backend check on /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Gateway       gateway.Status    `json:"gateway"`
	Checks        map[string]string `json:"checks,omitempty"`
	Runtime       RuntimeMetrics    `json:"runtime"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleIndex is the root greeting.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // Best-effort write
	w.Write([]byte("Hello, world.\n"))
}

// handleLiveness answers OK while the process serves HTTP, connected or not.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // Best-effort write
	w.Write([]byte("OK"))
}

// handleHealth reports connection state and backend checks. It answers 503
// while the control server is unreachable so it can serve as a readiness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Gateway:       s.gateway.Status(),
		Checks:        s.runChecks(r.Context()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	status := http.StatusOK
	if !resp.Gateway.Connected {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	for _, result := range resp.Checks {
		if result != "ok" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, status, resp)
}

// runChecks runs every configured backend check. Optional backends never
// fail the probe; their state is only reported.
func (s *Server) runChecks(ctx context.Context) map[string]string {
	if len(s.checks) == 0 {
		return nil
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := s.checks[name].HealthCheck(checkCtx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	return results
}

// handleMetrics serves the Prometheus exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
