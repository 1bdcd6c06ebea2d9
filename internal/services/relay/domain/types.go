package domain

import (
	"time"

	perr "otprelay/internal/platform/errors"
)

// Phase is the controller state
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseFetching   Phase = "fetching"
	PhaseValidating Phase = "validating"
	PhaseExtracting Phase = "extracting"
	PhaseFiltering  Phase = "filtering"
	PhaseNotifying  Phase = "notifying"
	PhasePersisting Phase = "persisting"
	PhaseSleeping   Phase = "sleeping"
	PhaseError      Phase = "error"
)

// CycleReport summarizes one poll cycle
type CycleReport struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Outcome  string        `json:"outcome"`

	Fetched   int `json:"fetched"`
	Valid     int `json:"valid"`
	New       int `json:"new"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped_no_otp"`
	Baselined int `json:"baselined,omitempty"`

	Err  string         `json:"error,omitempty"`
	Code perr.ErrorCode `json:"code,omitempty"`
}

// OK reports whether the cycle ended without error
func (r CycleReport) OK() bool { return r.Err == "" }

// DestFailure is why one destination did not accept a message
type DestFailure struct {
	Dest     string         `json:"dest"`
	Code     perr.ErrorCode `json:"code"`
	Err      string         `json:"error"`
	Attempts int            `json:"attempts"`
}

// DeliveryReport is the notifier's verdict for one message
type DeliveryReport struct {
	Accepted []string
	Failures []DestFailure
}

// OK is true when at least one destination accepted the message
func (r DeliveryReport) OK() bool { return len(r.Accepted) > 0 }

// Delivery is one journal row
type Delivery struct {
	CycleID     string
	Source      string
	Identity    string
	Number      string
	Service     string
	Country     string
	Rule        string
	Accepted    int
	Failed      int
	ReceivedAt  time.Time
	DeliveredAt time.Time
}

// Stats is the status server's view of the controller
type Stats struct {
	Source      string       `json:"source"`
	Phase       Phase        `json:"phase"`
	StartedAt   time.Time    `json:"started_at"`
	Cycles      int64        `json:"cycles"`
	Failures    int64        `json:"failures"`
	Consecutive int          `json:"consecutive_errors"`
	BreakerTrip int64        `json:"breaker_trips"`
	Delivered   int64        `json:"delivered"`
	Skipped     int64        `json:"skipped_no_otp"`
	LedgerSize  int          `json:"ledger_size"`
	LedgerCap   int          `json:"ledger_cap"`
	LastSuccess time.Time    `json:"last_success,omitempty"`
	LastReport  *CycleReport `json:"last_report,omitempty"`
}

// ProbeReport is the result of a startup connectivity check
type ProbeReport struct {
	PanelOutcome string `json:"panel_outcome"`
	PanelRows    int    `json:"panel_rows"`
	PanelErr     string `json:"panel_error,omitempty"`
	BotUser      string `json:"bot_user,omitempty"`
	BotErr       string `json:"bot_error,omitempty"`
}

// OK is true when both upstreams answered
func (p ProbeReport) OK() bool { return p.PanelErr == "" && p.BotErr == "" }
