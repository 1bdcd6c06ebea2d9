package store

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/testkit"

	"github.com/redis/go-redis/v9"
)

func TestOpen_NoBackends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := Open(ctx, Config{})
	if err != nil {
		t.Fatalf("Open err = %v", err)
	}
	if s.PG != nil || s.CH != nil || s.RDS != nil || len(s.Backends()) != 0 {
		t.Fatalf("unexpected backends %v", s.Backends())
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close err = %v", err)
	}
}

func TestOpen_PGBadURL_IsConfigError(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), Config{PG: PGConfig{Enabled: true, URL: "://bad"}})
	if s != nil {
		t.Fatalf("expected nil store, got %#v", s)
	}
	if perr.CodeOf(err) != perr.ErrorCodeConfig {
		t.Fatalf("code = %v err = %v", perr.CodeOf(err), err)
	}
	if e, _ := perr.As(err); e.Field() != "LEDGER_PG_URL" {
		t.Fatalf("field = %q", e.Field())
	}
}

func TestOpen_CHBadURL_IsConfigError(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{CH: CHConfig{Enabled: true, URL: "://bad"}})
	if perr.CodeOf(err) != perr.ErrorCodeConfig {
		t.Fatalf("code = %v err = %v", perr.CodeOf(err), err)
	}
}

func TestOpen_RedisEmptyAddr(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{RDS: RedisConfig{Enabled: true}})
	if perr.CodeOf(err) != perr.ErrorCodeConfig {
		t.Fatalf("code = %v err = %v", perr.CodeOf(err), err)
	}
}

func TestOpen_RedisUnreachable_RetriesThenDB(t *testing.T) {
	testkit.Serial(t)

	var opened *redis.Options
	testkit.Swap(t, &newRedis, func(o *redis.Options) *redis.Client {
		opened = o
		o.Dialer = func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}
		o.MaxRetries = -1
		return redis.NewClient(o)
	})

	start := time.Now()
	_, err := Open(context.Background(), Config{
		AppName:        "otprelay",
		ConnectRetries: 2,
		PingTimeout:    200 * time.Millisecond,
		RDS:            RedisConfig{Enabled: true, Addr: "redis.invalid:6379", DB: 3},
	})
	if perr.CodeOf(err) != perr.ErrorCodeDB {
		t.Fatalf("code = %v err = %v", perr.CodeOf(err), err)
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Fatalf("err = %v", err)
	}
	if opened == nil || opened.DB != 3 || opened.ClientName != "otprelay" {
		t.Fatalf("options = %+v", opened)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("retry loop took too long")
	}
}
