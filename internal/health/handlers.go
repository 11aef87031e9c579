package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-kasir/internal/common"
)

var draining atomic.Bool

// SetReady(false) makes Ready answer 503 so the load balancer stops routing
// new sales here while in-flight requests finish.
func SetReady(v bool) { draining.Store(!v) }

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Check is the outcome of one probe.
type Check struct {
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	Optional  bool    `json:"optional,omitempty"`
	LatencyMS float64 `json:"latencyMs"`
}

// Report is the body of /health/ready.
type Report struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

// Handler serves liveness and readiness.
type Handler struct {
	// Probes are keyed by dependency name: "db", "redis", "backoffice".
	Probes map[string]Probe
	// Optional dependencies degrade readiness instead of failing it. The
	// back office is optional because the till keeps working on cached data.
	Optional map[string]bool
	Timeout  time.Duration
}

// Live answers 200 while the process is up.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently. It answers 503 while draining or when
// a required dependency fails.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSONError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is draining", nil)
		return
	}
	report := h.Check(r.Context())
	code := http.StatusOK
	if report.Status == "unavailable" {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, report)
}

// Check probes all dependencies. Status is "ready", "degraded" when only
// optional ones fail, or "unavailable".
func (h Handler) Check(ctx context.Context) Report {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(h.Probes))
	)
	for name, probe := range h.Probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := probe(pctx)
			c := Check{
				Status:    "ok",
				Optional:  h.Optional[name],
				LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
			}
			if err != nil {
				c.Status, c.Error = "error", err.Error()
			}
			mu.Lock()
			checks[name] = c
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := "ready"
	for _, c := range checks {
		if c.Status == "ok" {
			continue
		}
		if !c.Optional {
			status = "unavailable"
			break
		}
		status = "degraded"
	}
	return Report{Status: status, Checks: checks}
}
