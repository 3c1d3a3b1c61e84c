package sql

import (
	"strings"
	"testing"
)

func TestHasRowLimit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"limit clause", "SELECT * FROM products LIMIT 10", true},
		{"lowercase limit", "select * from products limit 5", true},
		{"top clause", "SELECT TOP 10 * FROM products", true},
		{"fetch first", "SELECT * FROM products FETCH FIRST 10 ROWS ONLY", true},
		{"no limit", "SELECT * FROM products", false},
		{"limit in identifier", "SELECT credit_limit_amount FROM vendors", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasRowLimit(tt.input); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExplicitLimit(t *testing.T) {
	if got := ExplicitLimit("SELECT * FROM products LIMIT 25"); got != 25 {
		t.Errorf("got %d, want 25", got)
	}
	if got := ExplicitLimit("SELECT * FROM products"); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestIsAggregate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"bare count", "SELECT COUNT(*) FROM sales_transactions", true},
		{"sum without grouping", "SELECT SUM(total_amount) FROM sales_transactions", true},
		{"count with group by", "SELECT distributor_id, COUNT(*) FROM sales_transactions GROUP BY distributor_id", false},
		{"plain select", "SELECT * FROM sales_transactions", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAggregate(tt.input); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestApplyRowCap(t *testing.T) {
	t.Run("wraps unbounded select", func(t *testing.T) {
		got := ApplyRowCap("SELECT * FROM products", 100)
		if !strings.Contains(got, "LIMIT 100") || !strings.Contains(got, "_capped") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("leaves explicit limit alone", func(t *testing.T) {
		input := "SELECT * FROM products LIMIT 5"
		if got := ApplyRowCap(input, 100); got != input {
			t.Errorf("got %q, want unchanged", got)
		}
	})

	t.Run("leaves aggregate alone", func(t *testing.T) {
		input := "SELECT COUNT(*) FROM products"
		if got := ApplyRowCap(input, 100); got != input {
			t.Errorf("got %q, want unchanged", got)
		}
	})

	t.Run("zero cap is a no-op", func(t *testing.T) {
		input := "SELECT * FROM products"
		if got := ApplyRowCap(input, 0); got != input {
			t.Errorf("got %q, want unchanged", got)
		}
	})
}

func TestCheckLiterals(t *testing.T) {
	t.Run("clean literals pass", func(t *testing.T) {
		hits := CheckLiterals("SELECT * FROM surgeons WHERE surgeon_name = 'Jane Smith'")
		if len(hits) != 0 {
			t.Errorf("got %d hits, want 0", len(hits))
		}
	})

	t.Run("injection fingerprint detected", func(t *testing.T) {
		hits := CheckLiterals("SELECT * FROM surgeons WHERE surgeon_name = 'x'' OR 1=1 --'")
		if len(hits) == 0 {
			t.Error("expected at least one hit")
		}
	})
}
