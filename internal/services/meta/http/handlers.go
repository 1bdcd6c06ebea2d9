// Package http provides the process level status endpoints
package http

import (
	"context"
	"net/http"
	"time"

	"otprelay/internal/core/version"
	"otprelay/internal/modkit/httpkit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check is one named readiness probe
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName  string
	StartedAt    time.Time
	Checks       []Check
	CheckTimeout time.Duration
	Metrics      prometheus.Gatherer
	Now          func() time.Time
}

type handlers struct {
	deps Deps
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	if d.CheckTimeout <= 0 {
		d.CheckTimeout = 2 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{deps: d}

	httpkit.Get(r, "/healthz", h.health)
	httpkit.Get(r, "/readyz", h.ready)
	httpkit.Get(r, "/version", h.version)
	httpkit.Get(r, "/service", h.service)
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Started string `json:"started"`
	Now     string `json:"now"`
}

// ReadyCheck describes a single dependency check
type ReadyCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // ok fail
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// ReadyResponse summarizes readiness
type ReadyResponse struct {
	Status string       `json:"status"` // ok fail
	Checks []ReadyCheck `json:"checks"`
	Now    string       `json:"now"`
}

// ServiceResponse describes service info
type ServiceResponse struct {
	Name    string `json:"name"`
	Started string `json:"started"`
	Uptime  int64  `json:"uptime"`
}

func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Now:     h.deps.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ready runs every check under one deadline; any failure turns the answer into a 503
func (h *handlers) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.deps.CheckTimeout)
	defer cancel()

	out := ReadyResponse{Status: "ok", Checks: make([]ReadyCheck, 0, len(h.deps.Checks))}
	for _, c := range h.deps.Checks {
		start := time.Now()
		rc := ReadyCheck{Name: c.Name, Status: "ok"}
		if err := c.Fn(ctx); err != nil {
			rc.Status = "fail"
			rc.Error = err.Error()
			out.Status = "fail"
		}
		rc.Elapsed = time.Since(start).Round(time.Microsecond).String()
		out.Checks = append(out.Checks, rc)
	}
	out.Now = h.deps.Now().UTC().Format(time.RFC3339)

	if out.Status != "ok" {
		return httpkit.Unavailable(out), nil
	}
	return out, nil
}

func (h *handlers) version(_ *http.Request) (any, error) {
	return version.Info(), nil
}

func (h *handlers) service(_ *http.Request) (any, error) {
	now := h.deps.Now()
	return ServiceResponse{
		Name:    h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(now.Sub(h.deps.StartedAt).Seconds()),
	}, nil
}
