package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"otprelay/internal/platform/store/ch"
)

type fakeCH struct {
	execSQL  string
	inserted map[string][][]any
	rows     *fakeCHRows
	queryErr error
	pingErr  error
	closed   bool
}

func (f *fakeCH) Exec(_ context.Context, sql string, _ ...any) error {
	f.execSQL = sql
	return nil
}

func (f *fakeCH) Insert(_ context.Context, table string, rows [][]any) error {
	if f.inserted == nil {
		f.inserted = map[string][][]any{}
	}
	f.inserted[table] = append(f.inserted[table], rows...)
	return nil
}

func (f *fakeCH) Query(context.Context, string, ...any) (ch.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeCH) Ping(context.Context) error { return f.pingErr }
func (f *fakeCH) Close() error               { f.closed = true; return nil }

type fakeCHRows struct {
	vals   []uint64
	i      int
	closed bool
}

func (r *fakeCHRows) Next() bool {
	r.i++
	return r.i <= len(r.vals)
}

func (r *fakeCHRows) Scan(dest ...any) error {
	p, ok := dest[0].(*uint64)
	if !ok {
		return errors.New("want *uint64")
	}
	*p = r.vals[r.i-1]
	return nil
}

func (r *fakeCHRows) Err() error        { return nil }
func (r *fakeCHRows) Close() error      { r.closed = true; return errors.New("ignored") }
func (r *fakeCHRows) Columns() []string { return []string{"n"} }

func TestCHAdapter_PassThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := &fakeCH{rows: &fakeCHRows{vals: []uint64{3, 5}}}
	a := newCHAdapter(f)

	if err := a.Exec(ctx, "CREATE TABLE IF NOT EXISTS t (n UInt64) ENGINE = Memory"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if f.execSQL == "" {
		t.Fatalf("Exec not forwarded")
	}

	batch := [][]any{{uint64(1)}, {uint64(2)}}
	if err := a.Insert(ctx, "t", batch); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !reflect.DeepEqual(f.inserted["t"], batch) {
		t.Fatalf("inserted = %v", f.inserted["t"])
	}

	rs, err := a.Query(ctx, "SELECT n FROM t")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if cols := rs.Columns(); len(cols) != 1 || cols[0] != "n" {
		t.Fatalf("Columns = %v", cols)
	}
	var sum uint64
	for rs.Next() {
		var n uint64
		if err := rs.Scan(&n); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		sum += n
	}
	rs.Close()
	if sum != 8 || !f.rows.closed {
		t.Fatalf("sum = %d closed = %v", sum, f.rows.closed)
	}

	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := a.Close(); err != nil || !f.closed {
		t.Fatalf("Close: %v closed=%v", err, f.closed)
	}
}

func TestCHAdapter_QueryError(t *testing.T) {
	t.Parallel()

	a := newCHAdapter(&fakeCH{queryErr: errors.New("table missing")})
	rs, err := a.Query(context.Background(), "SELECT 1")
	if err == nil || rs != nil {
		t.Fatalf("rs = %v err = %v", rs, err)
	}
}
