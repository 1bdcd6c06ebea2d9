package service

import (
	"context"
	"time"

	dom "otprelay/internal/services/relay/domain"
)

// Run cycles until ctx ends; cycles never overlap
// It returns nil on shutdown since every cycle failure is already handled by the breaker
func (s *Svc) Run(ctx context.Context) error {
	s.log.Info().
		Str("source", s.cfg.Source).
		Dur("interval", s.cfg.Interval).
		Int("destinations", len(s.cfg.Destinations)).
		Int("ledger_capacity", s.cfg.LedgerCapacity).
		Msg("relay started")

	for {
		_, err := s.RunOnce(ctx)
		wait := s.nextSleep(err)
		if ctx.Err() != nil {
			break
		}
		s.setPhase(dom.PhaseSleeping)
		if s.sleep(ctx, wait) != nil {
			break
		}
	}

	s.setPhase(dom.PhaseIdle)
	s.log.Info().Msg("relay stopped")
	return nil
}

// nextSleep applies the breaker: threshold consecutive failures earn one extended backoff
func (s *Svc) nextSleep(err error) time.Duration {
	wait := s.cfg.Interval
	tripped := false
	consecutive := 0
	s.stats.update(func(st *dom.Stats) {
		if err == nil {
			st.Consecutive = 0
			return
		}
		st.Consecutive++
		if st.Consecutive >= s.cfg.ErrorThreshold {
			st.Consecutive = 0
			st.BreakerTrip++
			tripped = true
			wait = s.cfg.ErrorBackoff
		}
		consecutive = st.Consecutive
	})
	s.metrics.consecutive.Set(float64(consecutive))
	if tripped {
		s.metrics.trips.Inc()
		s.log.Warn().
			Int("threshold", s.cfg.ErrorThreshold).
			Dur("backoff", wait).
			Msg("too many consecutive failures, backing off")
	}
	return wait
}
