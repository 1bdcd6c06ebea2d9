package service

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"otprelay/internal/adapters/panel"
	"otprelay/internal/core/ledger"
	"otprelay/internal/core/message"
	"otprelay/internal/core/otp"
	"otprelay/internal/core/sms"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	dom "otprelay/internal/services/relay/domain"
)

const journalTimeout = 5 * time.Second

// candidate is a validated row with its identity and extracted passcode
type candidate struct {
	rec   sms.Record
	id    sms.Identity
	match otp.Match
}

// RunOnce executes exactly one cycle under the watchdog
// The cycle ignores cancellation of ctx so a shutdown never cuts it in half;
// only the cycle timeout bounds it
func (s *Svc) RunOnce(ctx context.Context) (rep dom.CycleReport, err error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
	defer cancel()

	rep = dom.CycleReport{ID: s.newID(), Started: s.now()}
	cctx = logger.WithCycle(cctx, rep.ID, s.cfg.Source)

	defer func() {
		if v := recover(); v != nil {
			logger.From(s.log, cctx).Error().
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("cycle panic recovered")
			err = perr.PanicErrf("cycle panic: %v", v)
		}
		if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && !perr.IsCode(err, perr.ErrorCodeTimeout) {
			err = perr.Wrapf(err, perr.ErrorCodeTimeout, "cycle exceeded %s", s.cfg.CycleTimeout)
		}
		rep.Duration = s.now().Sub(rep.Started)
		s.finish(cctx, &rep, err)
	}()

	s.setPhase(dom.PhaseIdle)
	err = s.cycle(cctx, &rep)
	return rep, err
}

func (s *Svc) cycle(ctx context.Context, rep *dom.CycleReport) error {
	log := logger.From(s.log, ctx)

	if err := s.ensureLedger(ctx); err != nil {
		rep.Outcome = "ledger_load"
		return err
	}
	if s.dirty {
		if err := s.persist(ctx); err != nil {
			rep.Outcome = "persist"
			return err
		}
	}

	s.setPhase(dom.PhaseFetching)
	res, err := s.fetch.Fetch(ctx)
	rep.Outcome = string(res.Outcome)
	rep.Fetched = len(res.Rows)
	s.metrics.rows.WithLabelValues("fetched").Add(float64(len(res.Rows)))
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeSessionExpired) {
			log.Error().Err(err).Msg("panel session expired; refresh PANEL_PHPSESSID")
		}
		return err
	}
	if res.Outcome != panel.OutcomeOK {
		// a clean empty page still counts as the baseline fetch
		s.baseline = false
		return nil
	}

	s.setPhase(dom.PhaseValidating)
	recs, tally := s.validator.Rows(res.Rows)
	rep.Valid = len(recs)
	s.metrics.rows.WithLabelValues("valid").Add(float64(len(recs)))
	if n := tally.Total(); n > 0 {
		s.metrics.rows.WithLabelValues("rejected").Add(float64(n))
		log.Debug().Int("rejected", n).Interface("reasons", tally).Msg("rows rejected")
	}
	sms.SortOldestFirst(recs)

	s.setPhase(dom.PhaseExtracting)
	cands := make([]candidate, 0, len(recs))
	for _, r := range recs {
		cands = append(cands, candidate{rec: r, id: r.ID(), match: s.extract.Match(r.Message)})
	}

	if s.baseline {
		return s.baselineAll(ctx, rep, cands)
	}

	s.setPhase(dom.PhaseFiltering)
	fresh := s.filterNew(cands)
	rep.New = len(fresh)

	// an undelivered record stays out of the ledger and is retried next cycle;
	// newer records still go out, the first delivery error fails the cycle
	var undelivered error
	for _, c := range fresh {
		if err := ctx.Err(); err != nil {
			return perr.Wrap(err, perr.ErrorCodeTimeout, "cycle deadline reached mid-batch")
		}
		err := s.handle(ctx, rep, c)
		switch {
		case err == nil:
		case perr.IsCode(err, perr.ErrorCodeDelivery):
			log.Warn().Err(err).Str("id", string(c.id)).Msg("record not delivered, retrying next cycle")
			if undelivered == nil {
				undelivered = err
			}
		default:
			return err
		}
	}
	return undelivered
}

// filterNew keeps candidates the ledger has not seen, once each
func (s *Svc) filterNew(cands []candidate) []candidate {
	seen := make(map[sms.Identity]struct{}, len(cands))
	out := cands[:0:0]
	for _, c := range cands {
		if _, dup := seen[c.id]; dup || !s.ledger.IsNew(c.id) {
			continue
		}
		seen[c.id] = struct{}{}
		out = append(out, c)
	}
	return out
}

// handle notifies one new record and records it on success
// A record no destination accepted returns an ErrorCodeDelivery error and is left unrecorded
func (s *Svc) handle(ctx context.Context, rep *dom.CycleReport, c candidate) error {
	log := logger.From(s.log, ctx)

	if !c.match.Found() && s.cfg.SkipWithoutOTP {
		rep.Skipped++
		s.metrics.records.WithLabelValues("skipped").Inc()
		log.Debug().Str("id", string(c.id)).Msg("no passcode, recorded without notifying")
		return s.remember(ctx, c.id)
	}

	s.setPhase(dom.PhaseNotifying)
	dr := s.notify.Deliver(ctx, s.format.Format(c.rec, c.match.OTP))
	for _, f := range dr.Failures {
		s.metrics.destFailures.WithLabelValues(f.Code.String()).Inc()
	}
	if !dr.OK() {
		rep.Failed++
		s.metrics.records.WithLabelValues("failed").Inc()
		return deliveryError(dr)
	}

	rep.Delivered++
	s.metrics.records.WithLabelValues("delivered").Inc()
	log.Info().
		Str("service", c.rec.Service).
		Str("rule", string(c.match.Rule)).
		Int("accepted", len(dr.Accepted)).
		Int("failed", len(dr.Failures)).
		Msg("record delivered")

	if err := s.remember(ctx, c.id); err != nil {
		return err
	}
	s.appendJournal(ctx, rep.ID, c, dr)
	return nil
}

// baselineAll records every current identity without notifying
func (s *Svc) baselineAll(ctx context.Context, rep *dom.CycleReport, cands []candidate) error {
	for _, c := range cands {
		if s.ledger.IsNew(c.id) {
			s.ledger.Record(c.id)
			rep.Baselined++
		}
	}
	s.metrics.records.WithLabelValues("baselined").Add(float64(rep.Baselined))
	logger.From(s.log, ctx).Info().Int("baselined", rep.Baselined).Msg("baseline taken, existing rows will not be sent")
	s.dirty = true
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.baseline = false
	return nil
}

func (s *Svc) remember(ctx context.Context, id sms.Identity) error {
	s.ledger.Record(id)
	s.dirty = true
	return s.persist(ctx)
}

func (s *Svc) persist(ctx context.Context) error {
	s.setPhase(dom.PhasePersisting)
	if err := s.store.Save(ctx, s.cfg.Source, s.ledger.Strings()); err != nil {
		return perr.WrapIf(err, perr.ErrorCodeDB, "ledger persist failed")
	}
	s.dirty = false
	size := s.ledger.Len()
	s.metrics.ledgerSize.Set(float64(size))
	s.stats.update(func(st *dom.Stats) { st.LedgerSize = size })
	return nil
}

// ensureLedger loads the persisted ledger once; a failed load is retried next cycle
func (s *Svc) ensureLedger(ctx context.Context) error {
	if s.ledger != nil {
		return nil
	}
	ids, err := s.store.Load(ctx, s.cfg.Source)
	if err != nil {
		return perr.WrapIf(err, perr.ErrorCodeDB, "ledger load failed")
	}
	s.ledger = ledger.FromStrings(s.cfg.LedgerCapacity, ids)
	s.baseline = s.cfg.Baseline && s.ledger.Len() == 0
	size := s.ledger.Len()
	s.metrics.ledgerSize.Set(float64(size))
	s.stats.update(func(st *dom.Stats) { st.LedgerSize = size })
	logger.From(s.log, ctx).Info().
		Int("loaded", size).
		Int("capacity", s.ledger.Cap()).
		Bool("baseline", s.baseline).
		Msg("ledger ready")
	return nil
}

func (s *Svc) appendJournal(ctx context.Context, cycleID string, c candidate, dr dom.DeliveryReport) {
	if s.journal == nil {
		return
	}
	// the passcode itself never reaches the journal
	number, id := c.rec.Number, string(c.id)
	if s.cfg.MaskNumbers {
		number = message.MaskNumber(number)
		id = strings.Replace(id, c.rec.Number, number, 1)
	}
	jctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	err := s.journal.Append(jctx, dom.Delivery{
		CycleID:     cycleID,
		Source:      s.cfg.Source,
		Identity:    id,
		Number:      number,
		Service:     c.rec.Service,
		Country:     c.rec.Country(),
		Rule:        string(c.match.Rule),
		Accepted:    len(dr.Accepted),
		Failed:      len(dr.Failures),
		ReceivedAt:  c.rec.Timestamp,
		DeliveredAt: s.now(),
	})
	if err != nil {
		logger.From(s.log, ctx).Warn().Err(err).Msg("journal append failed")
	}
}

func deliveryError(dr dom.DeliveryReport) error {
	parts := make([]string, 0, len(dr.Failures))
	for _, f := range dr.Failures {
		parts = append(parts, f.Dest+": "+f.Err)
	}
	return perr.Deliveryf("no destination accepted the message (%s)", strings.Join(parts, "; "))
}

// finish publishes the report to stats, metrics and the log
func (s *Svc) finish(ctx context.Context, rep *dom.CycleReport, err error) {
	log := logger.From(s.log, ctx)
	phase := dom.PhaseIdle
	label := rep.Outcome
	if err != nil {
		phase = dom.PhaseError
		rep.Err = err.Error()
		rep.Code = perr.CodeOf(err)
		label = rep.Code.String()
	}
	if label == "" {
		label = "ok"
	}

	s.metrics.cycles.WithLabelValues(label).Inc()
	s.metrics.duration.Observe(rep.Duration.Seconds())
	if err == nil {
		s.metrics.lastSuccess.Set(float64(s.now().Unix()))
	}

	final := *rep
	s.stats.update(func(st *dom.Stats) {
		st.Phase = phase
		st.Cycles++
		st.Delivered += int64(rep.Delivered)
		st.Skipped += int64(rep.Skipped)
		if err != nil {
			st.Failures++
		} else {
			st.LastSuccess = s.now()
		}
		st.LastReport = &final
	})

	evt := log.Debug()
	switch {
	case err != nil:
		evt = log.Error().Err(err).Str("code", rep.Code.String())
	case rep.Delivered > 0 || rep.Skipped > 0 || rep.Baselined > 0:
		evt = log.Info()
	}
	evt.Str("outcome", rep.Outcome).
		Int("fetched", rep.Fetched).
		Int("valid", rep.Valid).
		Int("new", rep.New).
		Int("delivered", rep.Delivered).
		Int("failed", rep.Failed).
		Int("skipped", rep.Skipped).
		Dur("took", rep.Duration).
		Msg("cycle done")
}
