package repokit

import (
	"context"
	"errors"
	"testing"

	"otprelay/internal/platform/testkit"
)

type tag struct{}

func (tag) String() string      { return "SELECT 1" }
func (tag) RowsAffected() int64 { return 1 }

type fakeTx struct {
	calls   []string
	failOn  string
	pingErr error
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (CommandTag, error) {
	f.calls = append(f.calls, sql)
	if f.failOn != "" && len(args) > 0 && args[0] == f.failOn {
		return nil, errors.New("rejected " + f.failOn)
	}
	return tag{}, nil
}
func (f *fakeTx) Query(context.Context, string, ...any) (Rows, error) { return nil, nil }
func (f *fakeTx) QueryRow(context.Context, string, ...any) Row        { return nil }
func (f *fakeTx) Tx(ctx context.Context, fn func(Queryer) error) error {
	f.calls = append(f.calls, "begin")
	return fn(f)
}
func (f *fakeTx) Ping(context.Context) error { return f.pingErr }

func TestWithBeginHooks_RunsHooksFirst(t *testing.T) {
	t.Parallel()

	inner := &fakeTx{}
	tx := WithBeginHooks(inner, SetLocal("lock_timeout", "2s"))
	err := WithTx(context.Background(), tx, func(q Queryer) error {
		_, err := q.Exec(context.Background(), "delete from relay_ledger")
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	want := []string{"begin", "select set_config($1, $2, true)", "delete from relay_ledger"}
	if len(inner.calls) != len(want) {
		t.Fatalf("calls = %v", inner.calls)
	}
	for i := range want {
		if inner.calls[i] != want[i] {
			t.Fatalf("calls[%d] = %q want %q", i, inner.calls[i], want[i])
		}
	}
}

func TestWithBeginHooks_HookErrorSkipsFn(t *testing.T) {
	t.Parallel()

	inner := &fakeTx{failOn: "lock_timeout"}
	ran := false
	err := WithBeginHooks(inner, SetLocal("lock_timeout", "2s")).Tx(context.Background(), func(Queryer) error {
		ran = true
		return nil
	})
	if err == nil || ran {
		t.Fatalf("err = %v ran = %v", err, ran)
	}
}

func TestHookedTx_DelegatesAndPings(t *testing.T) {
	t.Parallel()

	inner := &fakeTx{pingErr: errors.New("down")}
	tx := WithBeginHooks(inner)
	if _, err := tx.Exec(context.Background(), "select 1"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	p, ok := tx.(interface{ Ping(context.Context) error })
	if !ok || p.Ping(context.Background()) == nil {
		t.Fatalf("ping should forward to inner")
	}
}

func TestBinder(t *testing.T) {
	t.Parallel()

	type repo struct{ q Queryer }
	b := BindFunc[repo](func(q Queryer) repo { return repo{q: q} })

	inner := &fakeTx{}
	if got := MustBind[repo](b, inner); got.q != inner {
		t.Fatalf("bound queryer mismatch")
	}
	testkit.MustPanic(t, func() { _ = MustBind[repo](b, nil) })
}
