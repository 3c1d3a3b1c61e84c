package sql

import (
	"reflect"
	"testing"
)

func TestExtractTables(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single table",
			input:    "SELECT * FROM sales_transactions",
			expected: []string{"sales_transactions"},
		},
		{
			name:     "join",
			input:    "SELECT * FROM sales_transactions s JOIN distributors d ON s.distributor_id = d.distributor_id",
			expected: []string{"distributors", "sales_transactions"},
		},
		{
			name:     "qualified names",
			input:    "SELECT * FROM public.sales_transactions JOIN public.products ON 1=1",
			expected: []string{"public.products", "public.sales_transactions"},
		},
		{
			name:     "duplicates deduplicated",
			input:    "SELECT * FROM products p1 JOIN products p2 ON p1.product_id = p2.product_id",
			expected: []string{"products"},
		},
		{
			name:     "cte name excluded",
			input:    "WITH monthly AS (SELECT * FROM sales_transactions) SELECT * FROM monthly",
			expected: []string{"sales_transactions"},
		},
		{
			name: "multiple ctes excluded",
			input: "WITH a AS (SELECT * FROM surgeons), b AS (SELECT * FROM facilities) " +
				"SELECT * FROM a JOIN b ON a.facility_id = b.facility_id",
			expected: []string{"facilities", "surgeons"},
		},
		{
			name:     "no tables",
			input:    "SELECT 1",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTables(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}
