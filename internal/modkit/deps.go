// Package modkit wires relay modules from shared process dependencies
package modkit

import (
	"otprelay/internal/platform/config"
	"otprelay/internal/platform/logger"
	"otprelay/internal/platform/store"

	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds core dependencies passed to modules
// Store and Metrics may be nil; modules fall back to file persistence and a private registry
type Deps struct {
	Log     *logger.Logger
	Cfg     config.Conf
	Store   *store.Store
	Metrics *prometheus.Registry
}

// Logger returns Log or the named process logger
func (d Deps) Logger(component string) *logger.Logger {
	if d.Log == nil {
		return logger.Named(component)
	}
	l := d.Log.With().Str("component", component).Logger()
	return &l
}

// Registry returns Metrics or a fresh registry nobody scrapes
func (d Deps) Registry() *prometheus.Registry {
	if d.Metrics == nil {
		return prometheus.NewRegistry()
	}
	return d.Metrics
}
