package service

import (
	"context"
	"time"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	"otprelay/internal/platform/retry"
	dom "otprelay/internal/services/relay/domain"

	"golang.org/x/time/rate"
)

// Notifier fans one text out to every destination in order
// Each destination gets its own retry budget; the gap limiter spaces sends across destinations
type Notifier struct {
	sender dom.Sender
	dests  []string
	policy retry.Policy
	gap    *rate.Limiter
	log    *logger.Logger
}

// NewNotifier builds a Notifier; gap <= 0 disables spacing
func NewNotifier(sender dom.Sender, dests []string, policy retry.Policy, gap time.Duration, log *logger.Logger) *Notifier {
	lim := rate.NewLimiter(rate.Inf, 1)
	if gap > 0 {
		lim = rate.NewLimiter(rate.Every(gap), 1)
	}
	if log == nil {
		log = logger.Named("notifier")
	}
	return &Notifier{
		sender: sender,
		dests:  append([]string(nil), dests...),
		policy: policy,
		gap:    lim,
		log:    log,
	}
}

// Deliver sends text to all destinations; the report is OK when any accepted it
func (n *Notifier) Deliver(ctx context.Context, text string) dom.DeliveryReport {
	var rep dom.DeliveryReport
	for _, dest := range n.dests {
		if err := n.gap.Wait(ctx); err != nil {
			rep.Failures = append(rep.Failures, dom.DestFailure{
				Dest: dest,
				Code: perr.ErrorCodeTimeout,
				Err:  err.Error(),
			})
			continue
		}

		attempts := 0
		err := n.policy.Do(ctx, func(ctx context.Context, attempt int) error {
			attempts = attempt
			return n.sender.Send(ctx, dest, text)
		}, func(attempt int, err error, wait time.Duration) {
			logger.From(n.log, ctx).Warn().
				Err(err).
				Str("chat", dest).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Msg("send failed, retrying")
		})
		if err != nil {
			logger.From(n.log, ctx).Error().
				Err(err).
				Str("chat", dest).
				Int("attempts", attempts).
				Msg("destination gave up")
			rep.Failures = append(rep.Failures, dom.DestFailure{
				Dest:     dest,
				Code:     perr.CodeOf(err),
				Err:      err.Error(),
				Attempts: attempts,
			})
			continue
		}
		rep.Accepted = append(rep.Accepted, dest)
	}
	return rep
}
