// Package domain defines the relay's ports and the values that cross them
package domain

import (
	"context"

	"otprelay/internal/adapters/panel"
)

// Fetcher pulls one page of raw rows from the panel
type Fetcher interface {
	Fetch(ctx context.Context) (panel.Result, error)
}

// Sender delivers one text to one destination
type Sender interface {
	Send(ctx context.Context, dest, text string) error
}

// LedgerStore persists the dedup ledger per source, oldest identity first
type LedgerStore interface {
	Load(ctx context.Context, source string) ([]string, error)
	Save(ctx context.Context, source string, ids []string) error
}

// Journal appends delivered records somewhere queryable; optional
type Journal interface {
	Append(ctx context.Context, d Delivery) error
}

// RunnerPort drives the poll loop
type RunnerPort interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) (CycleReport, error)
}

// StatsPort exposes a consistent snapshot for the status server
type StatsPort interface {
	Stats() Stats
}

// ProbePort checks both upstreams without touching the ledger
type ProbePort interface {
	Probe(ctx context.Context) ProbeReport
}
