package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Temutjin2k/ride-pooling/pkg/logger"
	wrap "github.com/Temutjin2k/ride-pooling/pkg/logger/wrapper"
)

const checkTimeout = 2 * time.Second

// DependencyCheck checks one dependency (database, geo index).
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Health struct {
	mode    string
	started time.Time
	checks  []DependencyCheck
	log     logger.Logger
}

func NewHealth(mode string, log logger.Logger, checks ...DependencyCheck) *Health {
	return &Health{
		mode:    mode,
		started: time.Now(),
		checks:  checks,
		log:     log,
	}
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Reports mode, uptime and the state of each dependency. Answers 503 when a dependency is down.
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      503  {object}  map[string]any
// @Router       /health [get]
func (h *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "health_check")

	status, code := "available", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, p := range h.checks {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.Check(pctx)
		cancel()

		if err != nil {
			h.log.Warn(ctx, "dependency check failed", "dependency", p.Name, "error", err)
			deps[p.Name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[p.Name] = "up"
	}

	response := envelope{
		"status": status,
		"mode":   h.mode,
		"uptime": time.Since(h.started).Truncate(time.Second).String(),
	}
	if len(deps) > 0 {
		response["dependencies"] = deps
	}

	if err := writeJSON(w, code, response, nil); err != nil {
		h.log.Error(ctx, "failed to write health response", err)
	}
}
