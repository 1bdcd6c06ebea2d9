// Package module wires the relay: panel client, Telegram sender, ledger store,
// journal and the poll controller, and mounts its status routes under /relay
package module

import (
	"context"

	"otprelay/internal/adapters/panel"
	"otprelay/internal/adapters/telegram"
	"otprelay/internal/core/message"
	"otprelay/internal/core/otp"
	"otprelay/internal/core/sms"
	"otprelay/internal/modkit"
	"otprelay/internal/modkit/httpkit"
	perr "otprelay/internal/platform/errors"
	dom "otprelay/internal/services/relay/domain"
	relayhttp "otprelay/internal/services/relay/http"
	"otprelay/internal/services/relay/repo"
	"otprelay/internal/services/relay/service"
)

// Ports exposed by the relay module
type Ports struct {
	Runner dom.RunnerPort
	Stats  dom.StatsPort
	Probe  dom.ProbePort
}

// Module implements modkit.Module
type Module struct {
	opts  Options
	ports Ports
	built modkit.Built
}

// New validates opts and builds the relay; nothing is fetched or sent yet
// The ledger backend is opened here so a bad LEDGER_* setting fails at startup
func New(ctx context.Context, deps modkit.Deps, opts Options, extra ...modkit.Option) (*Module, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := deps.Logger("relay")

	loc, err := opts.Location()
	if err != nil {
		return nil, err
	}
	profile := opts.PanelProfile()

	client, err := panel.NewClient(panel.Options{
		URL:       opts.PanelURL,
		SessionID: opts.PanelSessionID,
		SessKey:   opts.PanelSessKey,
		Since:     opts.Since,
		PageSize:  opts.PageSize,
		Referer:   opts.Referer,
		UserAgent: opts.UserAgent,
		Timeout:   opts.PanelTimeout,
		Attempts:  opts.FetchAttempts,
		Location:  loc,
		Profile:   profile,
	}, nil)
	if err != nil {
		return nil, err
	}

	buttons, err := message.ParseButtons(opts.Buttons)
	if err != nil {
		return nil, perr.WithField(perr.Wrap(err, perr.ErrorCodeValidation, "TELEGRAM_BUTTONS is malformed"), "TELEGRAM_BUTTONS")
	}
	mode := message.ParseMode(opts.ParseMode)
	sender, err := telegram.New(telegram.Options{
		Token:    opts.BotToken,
		Endpoint: opts.APIEndpoint,
		Timeout:  opts.BotTimeout,
		Mode:     mode,
		Buttons:  buttons,
	}, nil)
	if err != nil {
		return nil, err
	}

	ledgerStore, err := repo.OpenLedger(ctx, opts.LedgerBackend, opts.LedgerPath, deps.Store, log)
	if err != nil {
		return nil, err
	}
	journal, err := repo.OpenJournal(ctx, deps.Store)
	if err != nil {
		return nil, err
	}

	svc, err := service.New(service.Config{
		Source:         opts.Source,
		Interval:       opts.Interval,
		ErrorThreshold: opts.ErrorThreshold,
		ErrorBackoff:   opts.ErrorBackoff,
		CycleTimeout:   opts.CycleTimeout,
		LedgerCapacity: opts.LedgerCapacity,
		SkipWithoutOTP: opts.SkipWithoutOTP,
		Baseline:       opts.Baseline,
		MaskNumbers:    opts.MaskNumbers,
		Destinations:   opts.ChatIDs,
		SendAttempts:   opts.SendAttempts,
		SendRetryDelay: opts.SendRetryDelay,
		DestinationGap: opts.DestinationGap,
	}, service.Deps{
		Fetcher:   client,
		Sender:    sender,
		Store:     ledgerStore,
		Journal:   journal,
		Validator: sms.Validator{Profile: profile, Location: loc, Lenient: !opts.StrictTime},
		Extractor: otp.NewExtractor(opts.ExtraServices...),
		Formatter: message.New(message.Options{
			Mode:    mode,
			Mask:    opts.MaskNumbers,
			Title:   opts.Title,
			Footer:  opts.Footer,
			Buttons: buttons,
		}),
		Metrics:    deps.Registry(),
		Log:        log,
		PanelProbe: client,
		BotProbe:   sender,
	})
	if err != nil {
		return nil, err
	}

	m := &Module{
		opts:  opts,
		ports: Ports{Runner: svc, Stats: svc, Probe: svc},
	}
	m.built = modkit.Build(append([]modkit.Option{
		modkit.WithName("relay"),
		modkit.WithPrefix("/relay"),
		modkit.WithPorts(m.ports),
		modkit.WithRegister(func(r httpkit.Router) { relayhttp.Register(r, svc) }),
	}, extra...)...)

	log.Info().
		Str("profile", profile.Name).
		Str("source", svc.Config().Source).
		Str("ledger", opts.LedgerBackend).
		Bool("journal", journal != nil).
		Strs("chats", opts.ChatIDs).
		Msg("relay wired")
	return m, nil
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return m.built.Name }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) { m.built.Mount(r) }
