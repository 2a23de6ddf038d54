package memory

import "testing"

func TestSetIncrementsVersion(t *testing.T) {
	svc := NewService(nil)

	e1, err := svc.Set("fleet-1", "quarterly/Q1", "124.3B", TypeText, "agent-a", []string{"finance"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e1.Version != 1 {
		t.Fatalf("expected version 1, got %d", e1.Version)
	}

	e2, err := svc.Set("fleet-1", "quarterly/Q1", "124.3B rev", TypeText, "agent-a", []string{"finance"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e2.Version != 2 {
		t.Fatalf("expected version 2, got %d", e2.Version)
	}

	got, err := svc.Get("fleet-1", "quarterly/Q1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != 2 || got.Value != "124.3B rev" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestSetThenDeleteThenGetNotFound(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Set("fleet-1", "k", "v", TypeText, "a", nil, nil, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := svc.Delete("fleet-1", "k", ""); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.Get("fleet-1", "k"); err == nil {
		t.Fatal("expected not_found after delete")
	}
}

func TestQueryByTagReturnsEntryOnce(t *testing.T) {
	svc := NewService(nil)
	svc.Set("fleet-1", "quarterly/Q1", "124.3B", TypeText, "a", []string{"finance"}, nil, nil)
	svc.Set("fleet-1", "other", "x", TypeText, "a", []string{"ops"}, nil, nil)

	results, total := svc.Query("fleet-1", Query{Tags: []string{"finance"}, Limit: 10})
	if total != 1 || len(results) != 1 {
		t.Fatalf("expected exactly one match, got %d (total %d)", len(results), total)
	}
	if results[0].Key != "quarterly/Q1" {
		t.Fatalf("unexpected key: %s", results[0].Key)
	}
}

func TestValueTooLargeRejected(t *testing.T) {
	svc := NewService(nil)
	big := make([]byte, MaxValueBytes+1)
	if _, err := svc.Set("fleet-1", "k", string(big), TypeText, "a", nil, nil, nil); err == nil {
		t.Fatal("expected payload_too_large")
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"quarterly/*", "quarterly/Q1", true},
		{"quarterly/*", "quarterly/Q1/detail", false},
		{"quarterly/**", "quarterly/Q1/detail", true},
		{"**", "a/b/c", true},
		{"a/*/c", "a/b/c", true},
		{"a/*/c", "a/b/d", false},
	}
	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.key); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}
