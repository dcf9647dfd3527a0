package filter

import (
	"testing"
	"time"
)

func TestParseLedgerFilterEmpty(t *testing.T) {
	t.Parallel()

	condition, err := ParseLedgerFilter("   ")
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if condition.Clause != "" || len(condition.Params) != 0 {
		t.Fatalf("expected empty condition, got %+v", condition)
	}
}

func TestParseLedgerFilterEquality(t *testing.T) {
	t.Parallel()

	condition, err := ParseLedgerFilter(`user_id = "user-1"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if condition.Clause != "user_id = ?" {
		t.Fatalf("unexpected clause %q", condition.Clause)
	}
	if len(condition.Params) != 1 || condition.Params[0] != "user-1" {
		t.Fatalf("unexpected params %+v", condition.Params)
	}
}

func TestParseLedgerFilterConjunction(t *testing.T) {
	t.Parallel()

	condition, err := ParseLedgerFilter(`user_id = "user-1" AND action_type = "comment_creation"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if condition.Clause != "(user_id = ? AND action_type = ?)" {
		t.Fatalf("unexpected clause %q", condition.Clause)
	}
	if len(condition.Params) != 2 {
		t.Fatalf("expected 2 params, got %+v", condition.Params)
	}
}

func TestParseLedgerFilterDisjunction(t *testing.T) {
	t.Parallel()

	condition, err := ParseLedgerFilter(`action_type = "post_creation" OR action_type = "comment_creation"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if condition.Clause != "(action_type = ? OR action_type = ?)" {
		t.Fatalf("unexpected clause %q", condition.Clause)
	}
}

func TestParseLedgerFilterIntComparison(t *testing.T) {
	t.Parallel()

	condition, err := ParseLedgerFilter(`capped_amount >= 10`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if condition.Clause != "capped_amount >= ?" {
		t.Fatalf("unexpected clause %q", condition.Clause)
	}
	if len(condition.Params) != 1 || condition.Params[0] != int64(10) {
		t.Fatalf("unexpected params %+v", condition.Params)
	}
}

func TestParseLedgerFilterTimestamp(t *testing.T) {
	t.Parallel()

	condition, err := ParseLedgerFilter(`awarded_at >= timestamp("2026-03-01T00:00:00Z")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if condition.Clause != "awarded_at >= ?" {
		t.Fatalf("unexpected clause %q", condition.Clause)
	}
	want := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if len(condition.Params) != 1 || condition.Params[0] != want {
		t.Fatalf("unexpected params %+v, want %d", condition.Params, want)
	}
}

func TestParseLedgerFilterRejectsUnknownField(t *testing.T) {
	t.Parallel()

	if _, err := ParseLedgerFilter(`secret = "x"`); err == nil {
		t.Fatal("expected error for undeclared field")
	}
}

func TestParseLedgerFilterRejectsMalformedExpression(t *testing.T) {
	t.Parallel()

	if _, err := ParseLedgerFilter(`user_id = `); err == nil {
		t.Fatal("expected parse error")
	}
}
