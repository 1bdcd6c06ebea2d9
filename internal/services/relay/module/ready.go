package module

import (
	"context"
	"time"

	perr "otprelay/internal/platform/errors"
	dom "otprelay/internal/services/relay/domain"
)

// StaleAfter is how long the relay may go without a successful cycle before readiness fails
// three missed intervals plus one breaker pause
func (o Options) StaleAfter() time.Duration {
	return 3*o.Interval + o.ErrorBackoff
}

// Freshness reports unready when the last good cycle is older than maxAge
// a relay that has not been up for maxAge yet is given the benefit of the doubt
func Freshness(stats dom.StatsPort, maxAge time.Duration, now func() time.Time) func(context.Context) error {
	if now == nil {
		now = time.Now
	}
	return func(context.Context) error {
		s := stats.Stats()
		at := now()
		last := s.LastSuccess
		if last.IsZero() {
			last = s.StartedAt
		}
		if last.IsZero() {
			return nil
		}
		if age := at.Sub(last); age > maxAge {
			return perr.Unavailablef("relay: no successful cycle for %s (%d consecutive errors)", age.Round(time.Second), s.Consecutive)
		}
		return nil
	}
}

// Ready is the relay readiness probe for the meta module
func (m *Module) Ready() func(context.Context) error {
	return Freshness(m.ports.Stats, m.opts.StaleAfter(), nil)
}
