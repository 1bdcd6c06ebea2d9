// Package repo holds the relay's persistence: ledger stores (file, postgres,
// redis) and the optional clickhouse delivery journal
package repo

import (
	"context"
	"strings"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	"otprelay/internal/platform/store"
	dom "otprelay/internal/services/relay/domain"
)

// Ledger backends
const (
	BackendFile  = "file"
	BackendPG    = "pg"
	BackendRedis = "redis"
)

// Backends lists the accepted LEDGER_BACKEND values
var Backends = []string{BackendFile, BackendPG, BackendRedis}

// OpenLedger returns the ledger store for backend
// pg and redis need the matching seam in st; pg also gets its table created
func OpenLedger(ctx context.Context, backend, path string, st *store.Store, log *logger.Logger) (dom.LedgerStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFile(path, log), nil
	case BackendPG:
		if st == nil || st.PG == nil {
			return nil, perr.WithField(perr.Configf("ledger backend pg needs a postgres url"), "LEDGER_PG_URL")
		}
		pg := NewPG(st.PG)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case BackendRedis:
		if st == nil || st.RDS == nil {
			return nil, perr.WithField(perr.Configf("ledger backend redis needs an address"), "LEDGER_REDIS_ADDR")
		}
		return NewRedis(st.RDS), nil
	}
	return nil, perr.WithField(perr.Configf("unknown ledger backend %q", backend), "LEDGER_BACKEND")
}

// OpenJournal returns the clickhouse journal, or nil when clickhouse is not configured
func OpenJournal(ctx context.Context, st *store.Store) (dom.Journal, error) {
	if st == nil || st.CH == nil {
		return nil, nil
	}
	j := NewCHJournal(st.CH)
	if err := j.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return j, nil
}
