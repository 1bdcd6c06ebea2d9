package store

import (
	"context"
	"time"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/retry"
	chx "otprelay/internal/platform/store/ch"
	"otprelay/internal/platform/store/pg"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// startup pings back off from 150ms up to 2s between attempts
const (
	pingBackoffStart   = 150 * time.Millisecond
	pingBackoffCeiling = 2 * time.Second
)

// waitReady pings until the backend answers or the retry budget is spent
func waitReady(ctx context.Context, cfg Config, s *Store, name string, ping func(context.Context) error) error {
	pol := retry.Exponential(cfg.retries(), pingBackoffStart, pingBackoffCeiling)
	pol.Retryable = func(error) bool { return true }
	return pol.Do(ctx, func(ctx context.Context, _ int) error {
		toCtx, cancel := context.WithTimeout(ctx, cfg.pingTimeout())
		defer cancel()
		return ping(toCtx)
	}, func(attempt int, err error, wait time.Duration) {
		s.Log.Debug().Err(err).Str("backend", name).Int("attempt", attempt).Dur("wait", wait).Msg("backend not ready")
	})
}

// openPG opens pg and wraps it with our sql adapter once the pool answers
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.PG.LogSQL {
		tracer = pg.Tracer(s.Log)
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
	}, tracer, func(pc *pgxpool.Config) {
		if cfg.AppName == "" {
			return
		}
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	})
	if err != nil {
		return nil, perr.WithField(perr.Wrap(err, perr.ErrorCodeConfig, "invalid postgres url"), "LEDGER_PG_URL")
	}

	// ping the pool directly so the readiness loop leaves no sql trace lines
	if err := waitReady(ctx, cfg, s, "pg", p.Pool.Ping); err != nil {
		p.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "postgres ping failed after %d attempts", cfg.retries())
	}
	return newPGAdapter(p), nil
}

// openCH opens clickhouse with this process announced in the client info
func openCH(ctx context.Context, cfg Config, s *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{
		URL:  cfg.CH.URL,
		Role: cfg.AppName,
		Tag:  cfg.Version,
	})
	if err != nil {
		return nil, perr.WithField(perr.Wrap(err, perr.ErrorCodeConfig, "invalid clickhouse url"), "JOURNAL_CH_URL")
	}
	if err := waitReady(ctx, cfg, s, "ch", c.Ping); err != nil {
		_ = c.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "clickhouse ping failed after %d attempts", cfg.retries())
	}
	return newCHAdapter(c), nil
}

var newRedis = redis.NewClient

// openRDS opens a redis client and waits for PONG
func openRDS(ctx context.Context, cfg Config, s *Store) (*redis.Client, error) {
	if cfg.RDS.Addr == "" {
		return nil, perr.WithField(perr.Configf("redis address is empty"), "LEDGER_REDIS_ADDR")
	}
	rdb := newRedis(&redis.Options{
		Addr:       cfg.RDS.Addr,
		DB:         cfg.RDS.DB,
		Password:   cfg.RDS.Password,
		ClientName: cfg.AppName,
	})
	if err := waitReady(ctx, cfg, s, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		_ = rdb.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "redis ping failed after %d attempts", cfg.retries())
	}
	return rdb, nil
}
