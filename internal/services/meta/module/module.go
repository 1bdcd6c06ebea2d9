// Package module wires the process status endpoints (health, readiness, version, metrics) at the root
package module

import (
	"context"
	"time"

	"otprelay/internal/core/version"
	"otprelay/internal/modkit"
	"otprelay/internal/modkit/httpkit"
	"otprelay/internal/platform/store"
	metahttp "otprelay/internal/services/meta/http"
)

// Check re-exports the readiness probe type so callers do not import the http package
type Check = metahttp.Check

// Module implements modkit.Module
type Module struct {
	built     modkit.Built
	startedAt time.Time
	checks    []Check
}

// New builds the meta module; checks run on /readyz after the store backends
func New(deps modkit.Deps, checks []Check, opts ...modkit.Option) *Module {
	m := &Module{
		startedAt: time.Now(),
		checks:    append(StoreChecks(deps.Store), checks...),
	}
	reg := deps.Registry()

	b := modkit.Build(append([]modkit.Option{modkit.WithName("meta")}, opts...)...)
	external := b.Register
	b.Register = func(r httpkit.Router) {
		metahttp.Register(r, metahttp.Deps{
			ServiceName: version.Service,
			StartedAt:   m.startedAt,
			Checks:      m.checks,
			Metrics:     reg,
		})
		external(r)
	}
	m.built = b
	return m
}

// StoreChecks returns one ping per configured backend
func StoreChecks(s *store.Store) []Check {
	if s == nil {
		return nil
	}
	var out []Check
	if p, ok := s.PG.(store.Pinger); ok && s.PG != nil {
		out = append(out, Check{Name: "pg", Fn: p.Ping})
	}
	if s.CH != nil {
		out = append(out, Check{Name: "ch", Fn: s.CH.Ping})
	}
	if s.RDS != nil {
		rds := s.RDS
		out = append(out, Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rds.Ping(ctx).Err()
		}})
	}
	return out
}

// Checks lists the readiness probes in run order
func (m *Module) Checks() []Check { return m.checks }

// Name satisfies modkit.Module
func (m *Module) Name() string { return m.built.Name }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) { m.built.Mount(r) }
