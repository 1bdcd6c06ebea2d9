// Package service runs the relay's poll cycle: fetch, validate, order, extract,
// filter, notify and persist, with a breaker and a per-cycle watchdog
package service

import (
	"context"
	"time"

	"otprelay/internal/adapters/panel"
	"otprelay/internal/core/ledger"
	"otprelay/internal/core/message"
	"otprelay/internal/core/otp"
	"otprelay/internal/core/sms"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	"otprelay/internal/platform/retry"
	dom "otprelay/internal/services/relay/domain"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Config controls the controller
type Config struct {
	Source         string
	Interval       time.Duration
	ErrorThreshold int
	ErrorBackoff   time.Duration
	CycleTimeout   time.Duration
	LedgerCapacity int
	SkipWithoutOTP bool
	Baseline       bool
	MaskNumbers    bool

	Destinations   []string
	SendAttempts   int
	SendRetryDelay time.Duration
	DestinationGap time.Duration
}

func (c Config) withDefaults() Config {
	if c.Source == "" {
		c.Source = "default"
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 5
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 60 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 2 * time.Minute
	}
	if c.LedgerCapacity <= 0 {
		c.LedgerCapacity = ledger.DefaultCapacity
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = 3
	}
	if c.SendRetryDelay < 0 {
		c.SendRetryDelay = 0
	}
	return c
}

// PanelProber is the panel side of the startup probe
type PanelProber interface {
	Probe(ctx context.Context) (panel.Result, error)
}

// BotProber is the Telegram side of the startup probe
type BotProber interface {
	Probe(ctx context.Context) (string, error)
}

// Deps are the collaborators the controller composes
// Journal, probes and Metrics are optional
type Deps struct {
	Fetcher   dom.Fetcher
	Sender    dom.Sender
	Store     dom.LedgerStore
	Journal   dom.Journal
	Validator sms.Validator
	Extractor *otp.Extractor
	Formatter *message.Formatter
	Metrics   prometheus.Registerer
	Log       *logger.Logger

	PanelProbe PanelProber
	BotProbe   BotProber
}

// Svc owns the ledger and drives cycles; one goroutine calls Run or RunOnce
type Svc struct {
	cfg       Config
	fetch     dom.Fetcher
	store     dom.LedgerStore
	journal   dom.Journal
	validator sms.Validator
	extract   *otp.Extractor
	format    *message.Formatter
	notify    *Notifier
	metrics   *metrics
	log       *logger.Logger

	panelProbe PanelProber
	botProbe   BotProber

	ledger   *ledger.Ledger
	baseline bool
	dirty    bool

	stats statsBox

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

var (
	_ dom.RunnerPort = (*Svc)(nil)
	_ dom.StatsPort  = (*Svc)(nil)
	_ dom.ProbePort  = (*Svc)(nil)
)

// New validates deps and builds the controller; the ledger is loaded by the first cycle
func New(cfg Config, d Deps) (*Svc, error) {
	cfg = cfg.withDefaults()
	switch {
	case d.Fetcher == nil:
		return nil, perr.Configf("relay: no panel fetcher")
	case d.Sender == nil:
		return nil, perr.Configf("relay: no sender")
	case d.Store == nil:
		return nil, perr.Configf("relay: no ledger store")
	case len(cfg.Destinations) == 0:
		return nil, perr.WithField(perr.Configf("relay: no destinations"), "TELEGRAM_CHAT_IDS")
	}
	if d.Extractor == nil {
		d.Extractor = otp.NewExtractor()
	}
	if d.Formatter == nil {
		d.Formatter = message.New(message.Options{})
	}
	if d.Log == nil {
		d.Log = logger.Named("relay")
	}
	reg := d.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Svc{
		cfg:        cfg,
		fetch:      d.Fetcher,
		store:      d.Store,
		journal:    d.Journal,
		validator:  d.Validator,
		extract:    d.Extractor,
		format:     d.Formatter,
		notify:     NewNotifier(d.Sender, cfg.Destinations, retry.Fixed(cfg.SendAttempts, cfg.SendRetryDelay), cfg.DestinationGap, d.Log),
		metrics:    newMetrics(reg, cfg.Source),
		log:        d.Log,
		panelProbe: d.PanelProbe,
		botProbe:   d.BotProbe,
		now:        time.Now,
		sleep:      sleepCtx,
		newID:      func() string { return uuid.NewString() },
	}
	s.stats.init(dom.Stats{
		Source:    cfg.Source,
		Phase:     dom.PhaseIdle,
		StartedAt: s.now(),
		LedgerCap: cfg.LedgerCapacity,
	})
	return s, nil
}

// Config returns the effective configuration after defaults
func (s *Svc) Config() Config { return s.cfg }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
