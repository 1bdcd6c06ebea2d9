package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"otprelay/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recTracer struct {
	mu     sync.Mutex
	events []pg.QueryEvent
}

func (r *recTracer) OnQuery(_ context.Context, ev pg.QueryEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

type pgxRow struct{ err error }

func (r pgxRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int); ok {
		*p = 7
	}
	return nil
}

// pgxRowsStub implements pgx.Rows over identity strings
type pgxRowsStub struct {
	ids    []string
	i      int
	closed bool
}

func (r *pgxRowsStub) Close()                        { r.closed = true }
func (r *pgxRowsStub) Err() error                    { return nil }
func (r *pgxRowsStub) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT 0") }
func (r *pgxRowsStub) FieldDescriptions() []pgconn.FieldDescription {
	return []pgconn.FieldDescription{{Name: "position"}, {Name: "identity"}}
}
func (r *pgxRowsStub) Next() bool {
	r.i++
	return r.i <= len(r.ids)
}
func (r *pgxRowsStub) Scan(dest ...any) error {
	*dest[0].(*int) = r.i - 1
	*dest[1].(*string) = r.ids[r.i-1]
	return nil
}
func (r *pgxRowsStub) Values() ([]any, error) { return nil, errors.New("unused") }
func (r *pgxRowsStub) RawValues() [][]byte    { return nil }
func (r *pgxRowsStub) Conn() *pgx.Conn        { return nil }

// pgxTx is a pgx.Tx that records statements and how it ended
type pgxTx struct {
	execErr    error
	sqls       []string
	committed  bool
	rolledBack bool
}

func (f *pgxTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sqls = append(f.sqls, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (f *pgxTx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.sqls = append(f.sqls, sql)
	return &pgxRowsStub{ids: []string{"a", "b"}}, nil
}
func (f *pgxTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.sqls = append(f.sqls, sql)
	return pgxRow{}
}
func (f *pgxTx) Begin(context.Context) (pgx.Tx, error)                  { return f, nil }
func (f *pgxTx) Commit(context.Context) error                           { f.committed = true; return nil }
func (f *pgxTx) Rollback(context.Context) error                         { f.rolledBack = true; return nil }
func (f *pgxTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *pgxTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *pgxTx) Conn() *pgx.Conn                                        { return nil }
func (f *pgxTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("unused")
}
func (f *pgxTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("unused")
}

func TestTraced_EmitsPerStatement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := &recTracer{}
	q := traced{q: &pgxTx{}, tracer: tr, slowUS: -1}

	ct, err := q.Exec(ctx, "insert into relay_ledger values ($1)", "x")
	if err != nil || ct.RowsAffected() != 1 || ct.String() != "INSERT 0 1" {
		t.Fatalf("Exec tag = %v err = %v", ct, err)
	}

	rs, err := q.Query(ctx, "select position, identity from relay_ledger")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if cols := rs.Columns(); len(cols) != 2 || cols[1] != "identity" {
		t.Fatalf("Columns = %v", cols)
	}
	var got []string
	for rs.Next() {
		var pos int
		var id string
		if err := rs.Scan(&pos, &id); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		got = append(got, id)
	}
	rs.Close()
	if len(got) != 2 || rs.Err() != nil {
		t.Fatalf("rows = %v", got)
	}

	var n int
	if err := q.QueryRow(ctx, "select 7").Scan(&n); err != nil || n != 7 {
		t.Fatalf("QueryRow n = %d err = %v", n, err)
	}

	if len(tr.events) != 3 {
		t.Fatalf("events = %d, want 3", len(tr.events))
	}
	for _, ev := range tr.events {
		if ev.Slow {
			t.Fatalf("negative slow threshold must disable slow marking: %+v", ev)
		}
	}
}

func TestTraced_SlowAndErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := &recTracer{}
	boom := errors.New("unique violation")
	q := traced{q: &pgxTx{execErr: boom}, tracer: tr, slowUS: 0}

	if _, err := q.Exec(ctx, "insert"); !errors.Is(err, boom) {
		t.Fatalf("Exec err = %v", err)
	}
	if len(tr.events) != 1 || !errors.Is(tr.events[0].Err, boom) || !tr.events[0].Slow {
		t.Fatalf("event = %+v", tr.events)
	}

	// no tracer is fine
	if _, err := (traced{q: &pgxTx{}}).Exec(ctx, "insert"); err != nil {
		t.Fatalf("untraced Exec: %v", err)
	}
}

func TestPGAdapter_TxCommitAndRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tx := &pgxTx{}
	a := &pgAdapter{begin: func(context.Context) (pgx.Tx, error) { return tx, nil }}
	err := a.Tx(ctx, func(q RowQuerier) error {
		if _, err := q.Exec(ctx, "delete from relay_ledger where source = $1", "client"); err != nil {
			return err
		}
		_, err := q.Exec(ctx, "insert into relay_ledger values ($1, $2, $3)", "client", 0, "id")
		return err
	})
	if err != nil || !tx.committed || tx.rolledBack || len(tx.sqls) != 2 {
		t.Fatalf("commit path err = %v tx = %+v", err, tx)
	}

	tx = &pgxTx{}
	fail := errors.New("stop")
	err = a.Tx(ctx, func(q RowQuerier) error { return fail })
	if !errors.Is(err, fail) || tx.committed || !tx.rolledBack {
		t.Fatalf("rollback path err = %v tx = %+v", err, tx)
	}

	beginErr := errors.New("pool closed")
	a.begin = func(context.Context) (pgx.Tx, error) { return nil, beginErr }
	if err := a.Tx(ctx, func(RowQuerier) error { return nil }); !errors.Is(err, beginErr) {
		t.Fatalf("begin err = %v", err)
	}
}

func TestPGAdapter_PingNil(t *testing.T) {
	t.Parallel()

	var a *pgAdapter
	if err := a.Ping(context.Background()); err == nil {
		t.Fatalf("nil adapter ping should fail")
	}
}
