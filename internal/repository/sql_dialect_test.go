package repository

import (
	"strings"
	"testing"
)

func TestDayBucketExprByDialect(t *testing.T) {
	if got := dayBucketExprByDialect("sqlite", "occurred_at"); got != "CAST(date(occurred_at) AS TEXT)" {
		t.Fatalf("sqlite day expr mismatch, got %s", got)
	}
	if got := dayBucketExprByDialect("postgres", "occurred_at"); got != "to_char(occurred_at, 'YYYY-MM-DD')" {
		t.Fatalf("postgres day expr mismatch, got %s", got)
	}
	if got := dayBucketExpr(nil, "created_at"); got != "CAST(date(created_at) AS TEXT)" {
		t.Fatalf("nil db should fall back to sqlite, got %s", got)
	}
}

func TestBuildLikeCondition(t *testing.T) {
	condition, argCount := buildLikeCondition(nil, []string{"name", " ", "vendor_id"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if condition != "name LIKE ? OR vendor_id LIKE ?" {
		t.Fatalf("unexpected condition: %s", condition)
	}

	condition, _ = buildLikeConditionByDialect("postgres", []string{"name"})
	if !strings.Contains(condition, "ILIKE") {
		t.Fatalf("postgres should use ILIKE, got %s", condition)
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%test%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%test%" {
			t.Fatalf("args[%d] want %%test%% got %v", idx, arg)
		}
	}
}
