// Package http serves the relay's read-only status endpoints
package http

import (
	"fmt"
	"net/http"
	"time"

	"otprelay/internal/modkit/httpkit"
	perr "otprelay/internal/platform/errors"
	dom "otprelay/internal/services/relay/domain"

	"github.com/dustin/go-humanize"
)

// StatsResponse is the stats snapshot plus a few operator friendly renderings
type StatsResponse struct {
	dom.Stats
	Human Human `json:"human"`
}

// Human holds display strings derived from the snapshot
type Human struct {
	Started     string `json:"started"`
	LastSuccess string `json:"last_success"`
	Delivered   string `json:"delivered"`
	Ledger      string `json:"ledger"`
	LastCycle   string `json:"last_cycle,omitempty"`
}

type handlers struct {
	stats dom.StatsPort
	now   func() time.Time
}

// Register mounts the relay routes
func Register(r httpkit.Router, stats dom.StatsPort) {
	h := &handlers{stats: stats, now: time.Now}
	httpkit.Get(r, "/stats", h.getStats)
	httpkit.Get(r, "/cycles/last", h.lastCycle)
}

func (h *handlers) getStats(_ *http.Request) (any, error) {
	return render(h.stats.Stats(), h.now()), nil
}

func (h *handlers) lastCycle(_ *http.Request) (any, error) {
	st := h.stats.Stats()
	if st.LastReport == nil {
		return nil, perr.NotFoundf("no cycle has finished yet")
	}
	return st.LastReport, nil
}

func render(st dom.Stats, now time.Time) StatsResponse {
	hu := Human{
		Started:     humanize.RelTime(st.StartedAt, now, "ago", "from now"),
		LastSuccess: "never",
		Delivered:   humanize.Comma(st.Delivered),
		Ledger:      fmt.Sprintf("%s of %s", humanize.Comma(int64(st.LedgerSize)), humanize.Comma(int64(st.LedgerCap))),
	}
	if !st.LastSuccess.IsZero() {
		hu.LastSuccess = humanize.RelTime(st.LastSuccess, now, "ago", "from now")
	}
	if rep := st.LastReport; rep != nil {
		hu.LastCycle = fmt.Sprintf("%s in %s", outcome(rep), rep.Duration.Round(time.Millisecond))
	}
	return StatsResponse{Stats: st, Human: hu}
}

func outcome(rep *dom.CycleReport) string {
	if rep.Err != "" {
		return rep.Code.String()
	}
	if rep.Outcome == "" {
		return "ok"
	}
	return rep.Outcome
}
