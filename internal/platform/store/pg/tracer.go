package pg

import (
	"context"
	"strings"

	"otprelay/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent describes one finished statement
type QueryEvent struct {
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives every statement the store adapter runs
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer logs statements at debug, slow ones at warn, whatever the root level
// args are left out since ledger identities embed phone numbers
func Tracer(root *logger.Logger) QueryTracer {
	if root == nil {
		root = logger.Get()
	}
	ll := root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()
	return &zlTracer{log: ll}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(ctx context.Context, ev QueryEvent) {
	evt := z.log.Debug()
	if ev.Slow {
		evt = z.log.Warn()
	}
	if id := logger.CycleID(ctx); id != "" {
		evt = evt.Str("cycle_id", id)
	}
	evt.Float64("elapsed_ms", float64(ev.ElapsedUS)/1000.0).
		Bool("slow", ev.Slow).
		Str("sql", compact(ev.SQL)).
		Int("args", argCount(ev.Args)).
		Err(ev.Err).
		Msg("pg query")
}

func argCount(a any) int {
	if xs, ok := a.([]any); ok {
		return len(xs)
	}
	return 0
}

// compact folds whitespace runs to one space, keeping a single leading or trailing one
func compact(s string) string {
	if s == "" {
		return ""
	}
	out := strings.Join(strings.Fields(s), " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) && out != " " {
		out += " "
	}
	return out
}

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\t' || b == '\r' }
