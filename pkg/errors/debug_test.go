package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDescribeNil(t *testing.T) {
	if r := Describe(nil); r.Message != "" || r.PG != nil || len(r.Chain) != 0 {
		t.Fatalf("expected empty report, got %+v", r)
	}
}

func TestDescribeWalksChainAndPgx(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ledger_events_type_reference_key", TableName: "ledger_events", Message: "duplicate key"}
	err := Wrap(CodeConflict, fmt.Errorf("insert refund: %w", pgErr), "refund already recorded")

	r := Describe(err)
	if r.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", r.Code)
	}
	if len(r.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", r.Chain)
	}
	if r.PG == nil || r.PG.Code != "23505" || r.PG.Table != "ledger_events" {
		t.Fatalf("unexpected pg details %+v", r.PG)
	}

	fields := r.Fields()
	if fields["pg_constraint"] != "ledger_events_type_reference_key" {
		t.Fatalf("missing constraint in %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted: %v", fields)
	}
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("unexpected error_code %v", fields["error_code"])
	}
}

func TestDescribeLibPQ(t *testing.T) {
	err := fmt.Errorf("mark payment: %w", &pq.Error{Code: "40001", Message: "could not serialize access"})
	r := Describe(err)
	if r.PG == nil || r.PG.Code != "40001" {
		t.Fatalf("expected lib/pq details, got %+v", r.PG)
	}
	if r.Code != "" {
		t.Fatalf("untyped error should carry no code, got %s", r.Code)
	}
}

func TestReportFieldsPlainError(t *testing.T) {
	fields := Describe(stdErrors.New("boom")).Fields()
	if len(fields) != 1 || fields["error"] != "boom" {
		t.Fatalf("expected only the message, got %v", fields)
	}
}
