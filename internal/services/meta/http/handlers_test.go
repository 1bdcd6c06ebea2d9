package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otprelay/internal/modkit/httpkit"
	phttp "otprelay/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func mount(d Deps) httpkit.Router {
	r := phttp.AdaptChi(chi.NewRouter())
	Register(r, d)
	return r
}

func get(r httpkit.Router, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.Mux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return env.Data
}

func TestHealthAndService(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := mount(Deps{
		ServiceName: "otprelay",
		StartedAt:   started,
		Now:         func() time.Time { return started.Add(90 * time.Second) },
	})

	rr := get(r, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz code = %d", rr.Code)
	}
	h := decodeData[HealthResponse](t, rr)
	if !h.OK || h.Service != "otprelay" || h.Started != "2026-03-01T10:00:00Z" || h.Now != "2026-03-01T10:01:30Z" {
		t.Fatalf("health = %+v", h)
	}

	s := decodeData[ServiceResponse](t, get(r, "/service"))
	if s.Uptime != 90 || s.Name != "otprelay" {
		t.Fatalf("service = %+v", s)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	ok := Check{Name: "pg", Fn: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}

	rr := get(mount(Deps{Checks: []Check{ok}}), "/readyz")
	if rr.Code != http.StatusOK {
		t.Fatalf("all ok code = %d", rr.Code)
	}
	if got := decodeData[ReadyResponse](t, rr); got.Status != "ok" || len(got.Checks) != 1 || got.Checks[0].Status != "ok" {
		t.Fatalf("ready = %+v", got)
	}

	rr = get(mount(Deps{Checks: []Check{ok, down}}), "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("failing code = %d", rr.Code)
	}
	got := decodeData[ReadyResponse](t, rr)
	if got.Status != "fail" || got.Checks[1].Status != "fail" || got.Checks[1].Error != "connection refused" {
		t.Fatalf("ready = %+v", got)
	}

	// no checks means nothing to wait on
	if rr := get(mount(Deps{}), "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("empty code = %d", rr.Code)
	}
}

func TestReady_CheckDeadline(t *testing.T) {
	t.Parallel()

	slow := Check{Name: "ch", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	rr := get(mount(Deps{Checks: []Check{slow}, CheckTimeout: 10 * time.Millisecond}), "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rr.Code)
	}
}

func TestVersionAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "otprelay_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	r := mount(Deps{Metrics: reg})
	if rr := get(r, "/version"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"version"`) {
		t.Fatalf("version = %d %s", rr.Code, rr.Body.String())
	}
	rr := get(r, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "otprelay_test_total 1") {
		t.Fatalf("metrics = %d %s", rr.Code, rr.Body.String())
	}

	if rr := get(mount(Deps{}), "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("metrics without registry = %d", rr.Code)
	}
}
