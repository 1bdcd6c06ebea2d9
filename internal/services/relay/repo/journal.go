package repo

import (
	"context"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/store"
	dom "otprelay/internal/services/relay/domain"
)

// JournalTable receives one row per delivered record
const JournalTable = "relay_deliveries"

const journalDDL = `CREATE TABLE IF NOT EXISTS ` + JournalTable + ` (
	cycle_id     String,
	source       LowCardinality(String),
	identity     String,
	number       String,
	service      LowCardinality(String),
	country      LowCardinality(String),
	rule         LowCardinality(String),
	accepted     UInt16,
	failed       UInt16,
	received_at  DateTime64(3),
	delivered_at DateTime64(3)
) ENGINE = MergeTree
ORDER BY (source, delivered_at)`

// CHJournal appends deliveries to clickhouse
type CHJournal struct {
	ch store.Clickhouse
}

var _ dom.Journal = (*CHJournal)(nil)

// NewCHJournal wraps an open clickhouse seam
func NewCHJournal(ch store.Clickhouse) *CHJournal { return &CHJournal{ch: ch} }

// EnsureSchema creates the journal table when missing
func (j *CHJournal) EnsureSchema(ctx context.Context) error {
	if err := j.ch.Exec(ctx, journalDDL); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "create "+JournalTable)
	}
	return nil
}

// Append writes one delivery
func (j *CHJournal) Append(ctx context.Context, d dom.Delivery) error {
	err := j.ch.Insert(ctx, JournalTable, [][]any{{
		d.CycleID,
		d.Source,
		d.Identity,
		d.Number,
		d.Service,
		d.Country,
		d.Rule,
		uint16(d.Accepted),
		uint16(d.Failed),
		d.ReceivedAt,
		d.DeliveredAt,
	}})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "journal append")
	}
	return nil
}
