package repo

import (
	"context"

	"otprelay/internal/modkit/repokit"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/store"
)

const ledgerDDL = `create table if not exists relay_ledger (
	source      text        not null,
	position    integer     not null,
	identity    text        not null,
	recorded_at timestamptz not null default now(),
	primary key (source, position)
)`

// PG stores each source's ledger as ordered rows, replaced as one snapshot per save
type PG struct {
	tx repokit.TxRunner
}

// ledgerRows is the statement set bound to either the pool or an open transaction
type ledgerRows struct{ q repokit.Queryer }

var bindRows = repokit.BindFunc[ledgerRows](func(q repokit.Queryer) ledgerRows { return ledgerRows{q: q} })

// NewPG wraps tx; every save runs with a short lock_timeout so a stuck writer fails the cycle instead of hanging it
func NewPG(tx repokit.TxRunner) *PG {
	return &PG{tx: repokit.WithBeginHooks(tx, repokit.SetLocal("lock_timeout", "5s"))}
}

// EnsureSchema creates the ledger table when missing
func (p *PG) EnsureSchema(ctx context.Context) error {
	_, err := p.tx.Exec(ctx, ledgerDDL)
	return perr.FromPostgres(err, "create relay_ledger")
}

// Load returns the ids for source, oldest first
func (p *PG) Load(ctx context.Context, source string) ([]string, error) {
	ids, err := repokit.MustBind(bindRows, p.tx).list(ctx, source)
	if err != nil {
		return nil, perr.FromPostgresf(err, "load ledger %q", source)
	}
	return ids, nil
}

// Save replaces the stored ids for source in one transaction
func (p *PG) Save(ctx context.Context, source string, ids []string) error {
	err := repokit.WithTx(ctx, p.tx, func(q repokit.Queryer) error {
		return repokit.MustBind(bindRows, q).replace(ctx, source, ids)
	})
	return perr.FromPostgresf(err, "save ledger %q", source)
}

// Ping reports whether the database answers
func (p *PG) Ping(ctx context.Context) error {
	if pg, ok := p.tx.(store.Pinger); ok {
		return pg.Ping(ctx)
	}
	return nil
}

func (r ledgerRows) list(ctx context.Context, source string) ([]string, error) {
	return store.Many(ctx, r.q, func(row store.Row) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	}, `select identity from relay_ledger where source = $1 order by position`, source)
}

func (r ledgerRows) replace(ctx context.Context, source string, ids []string) error {
	if _, err := r.q.Exec(ctx, `delete from relay_ledger where source = $1`, source); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		insert into relay_ledger (source, position, identity)
		select $1, t.ord - 1, t.id
		from unnest($2::text[]) with ordinality as t(id, ord)`, source, ids)
	return err
}
