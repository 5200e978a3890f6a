package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthStatus struct {
	Status      string            `json:"status"`
	LastChecked time.Time         `json:"last_checked"`
	Uptime      string            `json:"uptime"`
	Version     string            `json:"version"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Health serves /health. Results are cached for cacheDuration so frequent
// probes do not hit every dependency.
type Health struct {
	mu            sync.Mutex
	version       string
	startTime     time.Time
	checks        map[string]HealthCheck
	cacheDuration time.Duration
	now           func() time.Time

	last     *HealthStatus
	lastCode int
}

func NewHealth(version string) *Health {
	return &Health{
		version:       version,
		startTime:     time.Now(),
		checks:        map[string]HealthCheck{},
		cacheDuration: 5 * time.Second,
		now:           time.Now,
	}
}

// AddCheck registers a named dependency check.
func (h *Health) AddCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	h.last = nil
}

func (h *Health) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := h.status(c.Request.Context())
		c.JSON(code, status)
	}
}

func (h *Health) status(ctx context.Context) (HealthStatus, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.last != nil && now.Sub(h.last.LastChecked) < h.cacheDuration {
		return *h.last, h.lastCode
	}

	status := HealthStatus{
		Status:      "ok",
		LastChecked: now,
		Uptime:      now.Sub(h.startTime).Round(time.Second).String(),
		Version:     h.version,
	}
	code := http.StatusOK

	if len(h.checks) > 0 {
		status.Checks = make(map[string]string, len(h.checks))
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		for name, check := range h.checks {
			if err := check(checkCtx); err != nil {
				status.Checks[name] = err.Error()
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[name] = "ok"
		}
	}

	h.last = &status
	h.lastCode = code
	return status, code
}
