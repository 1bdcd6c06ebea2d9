package errors

import (
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pg(code string) *pgconn.PgError {
	return &pgconn.PgError{Code: code}
}

func TestDBErrorCodeMappings(t *testing.T) {
	cases := []struct {
		code string
		want ErrorCode
	}{
		{"23505", ErrorCodeValidation},
		{"23502", ErrorCodeValidation},
		{"23514", ErrorCodeValidation},
		{"22001", ErrorCodeInvalidArgument},
		{"40001", ErrorCodeDB},
		{"25006", ErrorCodeUnavailable},
		{"57P03", ErrorCodeUnavailable},
		{"42P01", ErrorCodeDB},
		{"XXXXX", ErrorCodeDB},
	}
	for _, c := range cases {
		got, ok := DBErrorCode(pg(c.code))
		if !ok {
			t.Fatalf("expected ok for PgError code %s", c.code)
		}
		if got != c.want {
			t.Fatalf("DBErrorCode(%s) = %v, want %v", c.code, got, c.want)
		}
	}

	if _, ok := DBErrorCode(stderrs.New("nope")); ok {
		t.Fatalf("DBErrorCode should return ok=false for non-pg error")
	}
}

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("FromPostgres(nil) should be nil")
	}
	if FromPostgresf(nil, "x %d", 1) != nil {
		t.Fatalf("FromPostgresf(nil) should be nil")
	}
	err := FromPostgresf(pg("57P03"), "save ledger %s", "client")
	if CodeOf(err) != ErrorCodeUnavailable {
		t.Fatalf("FromPostgresf code = %v", CodeOf(err))
	}
	if !Retryable(err) {
		t.Fatalf("cannot-connect-now should be retryable")
	}
}

func TestIsUndefinedTable(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", pg("42P01"))
	if !IsUndefinedTable(wrapped) {
		t.Fatalf("42P01 should be detected through wrapping")
	}
	if IsUndefinedTable(stderrs.New("x")) {
		t.Fatalf("foreign error is not undefined table")
	}
}

func TestIsRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "57P01"} {
		if !IsRetryable(pg(code)) {
			t.Fatalf("%s should be retryable", code)
		}
	}
	if IsRetryable(pg("23505")) {
		t.Fatalf("23505 should not be retryable")
	}
	if IsRetryable(stderrs.New("nope")) {
		t.Fatalf("non-pg error should not be retryable")
	}
	if !IsRetryable(stderrs.New("ERROR: deadlock detected")) {
		t.Fatalf("deadlock text should be retryable")
	}
	// DB-coded wrapper falls through to the pg rules
	if !Retryable(Wrap(pg("40001"), ErrorCodeDB, "tx")) {
		t.Fatalf("serialization failure via Retryable should retry")
	}
}
