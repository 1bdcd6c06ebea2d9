package service

import (
	"context"
	"testing"
	"time"

	"otprelay/internal/adapters/panel"
	perr "otprelay/internal/platform/errors"
	dom "otprelay/internal/services/relay/domain"
)

func TestRun_BreakerExtendsSleep(t *testing.T) {
	t.Parallel()

	r := newRig(t, []step{{res: panel.Result{Outcome: panel.OutcomeTransport}, err: perr.Unavailablef("connection reset")}},
		func(c *Config) {
			c.Interval = time.Second
			c.ErrorThreshold = 3
			c.ErrorBackoff = time.Minute
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits []time.Duration
	r.svc.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 5 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := r.svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{time.Second, time.Second, time.Minute, time.Second, time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v", waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v want %v", waits, want)
		}
	}
	st := r.svc.Stats()
	if st.BreakerTrip != 1 || st.Consecutive != 2 || st.Failures != 5 || st.Phase != dom.PhaseIdle {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNextSleep_SuccessResets(t *testing.T) {
	t.Parallel()

	r := newRig(t, []step{{res: panel.Result{Outcome: panel.OutcomeEmpty}}}, func(c *Config) { c.ErrorThreshold = 2 })
	fail := perr.Formatf("no aaData")

	r.svc.nextSleep(fail)
	r.svc.nextSleep(nil)
	if got := r.svc.nextSleep(fail); got != r.svc.Config().Interval {
		t.Fatalf("counter should have reset on success, got %v", got)
	}
	if got := r.svc.nextSleep(fail); got != r.svc.Config().ErrorBackoff {
		t.Fatalf("second consecutive failure should trip, got %v", got)
	}
}

func TestRun_StopsOnCancelDuringSleep(t *testing.T) {
	t.Parallel()

	r := newRig(t, []step{{res: panel.Result{Outcome: panel.OutcomeEmpty}}}, func(c *Config) { c.Interval = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.svc.Stats().Phase != dom.PhaseSleeping {
		if time.Now().After(deadline) {
			t.Fatalf("never reached sleeping")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
