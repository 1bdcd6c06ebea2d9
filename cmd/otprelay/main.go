package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otprelay/internal/core/version"
	"otprelay/internal/modkit"
	"otprelay/internal/modkit/httpkit"
	"otprelay/internal/modkit/module"
	"otprelay/internal/platform/config"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	phttp "otprelay/internal/platform/net/http"
	"otprelay/internal/platform/store"

	metamod "otprelay/internal/services/meta/module"
	relaymod "otprelay/internal/services/relay/module"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fEnv     = flag.String("env", ".env", "dotenv file to load before reading the environment (missing is fine)")
		fOnce    = flag.Bool("once", false, "run a single poll cycle and exit")
		fProbe   = flag.Bool("probe", false, "check the panel and the bot token, then exit non-zero on failure")
		fProfile = flag.String("profile", "", "panel profile: client | agent | numberpanel (overrides PANEL_PROFILE)")
		fLedger  = flag.String("ledger", "", "ledger backend: file | pg | redis (overrides LEDGER_BACKEND)")
		fStatus  = flag.String("status", "", "status server listen address, enables the server (overrides STATUS_ADDR)")
	)
	flag.Parse()

	loaded := config.LoadDotenv(*fEnv)

	mustSetEnv("PANEL_PROFILE", *fProfile)
	mustSetEnv("LEDGER_BACKEND", *fLedger)
	if *fStatus != "" {
		mustSetEnv("STATUS_ADDR", *fStatus)
		mustSetEnv("STATUS_ENABLED", "1")
	}

	root := config.New()
	l := logger.Get()
	info := version.Info()
	l.Info().
		Str("version", info.Version).
		Str("commit", info.Commit).
		Strs("dotenv", loaded).
		Msg("otprelay starting")

	opts := relaymod.FromConfig(root)
	if err := opts.Validate(); err != nil {
		ev := l.Fatal().Err(err)
		if e, ok := perr.As(err); ok && e.Field() != "" {
			ev = ev.Str("field", e.Field())
		}
		ev.Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, relaymod.StoreConfig(root, opts, version.Service, info.Version), store.WithLogger(l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(cctx); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := modkit.Deps{
		Log:     l,
		Cfg:     root,
		Store:   st,
		Metrics: reg,
	}

	relay, err := relaymod.New(ctx, deps, opts)
	if err != nil {
		l.Fatal().Err(err).Msg("relay wiring failed")
	}
	module.Register(relay.Name(), relay.Ports())
	ports := module.MustPortsOf[relaymod.Ports](relay)

	pctx, cancel := context.WithTimeout(ctx, opts.PanelTimeout+opts.BotTimeout)
	probe := ports.Probe.Probe(pctx)
	guardErr := st.Guard(pctx)
	cancel()
	if guardErr != nil {
		l.Warn().Err(guardErr).Strs("backends", st.Backends()).Msg("store backends unhealthy")
	}
	if probe.OK() {
		l.Info().
			Str("panel", probe.PanelOutcome).
			Int("rows", probe.PanelRows).
			Str("bot", probe.BotUser).
			Msg("startup probe ok")
	} else {
		l.Warn().
			Str("panel", probe.PanelOutcome).
			Str("panel_error", probe.PanelErr).
			Str("bot_error", probe.BotErr).
			Msg("startup probe failed")
	}
	if *fProbe {
		if !probe.OK() || guardErr != nil {
			os.Exit(2)
		}
		return
	}

	if *fOnce {
		rep, err := ports.Runner.RunOnce(ctx)
		if err != nil {
			l.Error().Err(err).Str("outcome", rep.Outcome).Msg("cycle failed")
			os.Exit(1)
		}
		l.Info().Str("outcome", rep.Outcome).Int("delivered", rep.Delivered).Msg("cycle done")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ports.Runner.Run(gctx) })

	statusCfg := root.Prefix("STATUS_")
	if statusCfg.MayBool("ENABLED", false) {
		srv := phttp.NewServer(root)
		r := srv.Router()
		r.Use(httpkit.CommonStack(statusCfg.MayCSV("CORS_ORIGINS", nil))...)
		phttp.MountProfiler(r, "/debug", statusCfg.MayBool("PROFILER", false))

		meta := metamod.New(deps, []metamod.Check{{Name: "relay", Fn: relay.Ready()}})
		module.Register(meta.Name(), meta.Ports())
		meta.MountRoutes(r)
		relay.MountRoutes(r)

		l.Info().Str("addr", srv.Addr()).Msg("status server enabled")
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Fatal().Err(err).Msg("otprelay stopped")
	}
	l.Info().Msg("otprelay stopped")
}
