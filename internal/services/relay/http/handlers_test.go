package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otprelay/internal/modkit/httpkit"
	perr "otprelay/internal/platform/errors"
	phttp "otprelay/internal/platform/net/http"
	"otprelay/internal/platform/testkit"
	dom "otprelay/internal/services/relay/domain"

	"github.com/go-chi/chi/v5"
)

type fixedStats struct{ st dom.Stats }

func (f fixedStats) Stats() dom.Stats { return f.st }

func serve(t *testing.T, st dom.Stats, path string) (*httptest.ResponseRecorder, httpkit.Envelope) {
	t.Helper()
	r := phttp.AdaptChi(chi.NewRouter())
	Register(r, fixedStats{st: st})
	rr := httptest.NewRecorder()
	r.Mux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var env httpkit.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v body=%s", err, rr.Body)
	}
	return rr, env
}

func TestStats(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := dom.Stats{
		Source:      "client",
		Phase:       dom.PhaseSleeping,
		StartedAt:   now.Add(-2 * time.Hour),
		Cycles:      720,
		Delivered:   12345,
		LedgerSize:  200,
		LedgerCap:   200,
		LastSuccess: now.Add(-10 * time.Second),
		LastReport:  &dom.CycleReport{ID: "c1", Outcome: "empty", Duration: 420 * time.Millisecond},
	}
	rr, env := serve(t, st, "/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	raw, _ := json.Marshal(env.Data)
	body := string(raw)
	testkit.MustContain(t, body, `"delivered":"12,345"`)
	testkit.MustContain(t, body, `"ledger":"200 of 200"`)
	testkit.MustContain(t, body, `"started":"2 hours ago"`)
	testkit.MustContain(t, body, `"last_cycle":"empty in 420ms"`)
}

func TestStatsNeverSucceeded(t *testing.T) {
	t.Parallel()

	resp := render(dom.Stats{
		StartedAt:  time.Unix(0, 0),
		LastReport: &dom.CycleReport{Err: "boom", Code: perr.ErrorCodeSessionExpired},
	}, time.Unix(60, 0))
	if resp.Human.LastSuccess != "never" || resp.Human.LastCycle != "session_expired in 0s" {
		t.Fatalf("human = %+v", resp.Human)
	}
}

func TestLastCycle(t *testing.T) {
	t.Parallel()

	rr, env := serve(t, dom.Stats{}, "/cycles/last")
	if rr.Code != http.StatusNotFound || env.Code != perr.ErrorCodeNotFound {
		t.Fatalf("empty: %d %+v", rr.Code, env)
	}

	rr, env = serve(t, dom.Stats{LastReport: &dom.CycleReport{ID: "c9", Delivered: 2}}, "/cycles/last")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	data, _ := env.Data.(map[string]any)
	if data["id"] != "c9" {
		t.Fatalf("data = %v", env.Data)
	}
}
