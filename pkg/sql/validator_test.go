package sql

import (
	"testing"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select without semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "simple select with trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "select with leading and trailing whitespace",
			input:    "  SELECT * FROM sales_transactions  ",
			expected: "SELECT * FROM sales_transactions",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM surgeons WHERE surgeon_name = 'test;test'",
			expected: "SELECT * FROM surgeons WHERE surgeon_name = 'test;test'",
		},
		{
			name:     "SQL standard escaped single quote",
			input:    "SELECT * FROM surgeons WHERE surgeon_name = 'O''Brien'",
			expected: "SELECT * FROM surgeons WHERE surgeon_name = 'O''Brien'",
		},
		{
			name:     "CTE query",
			input:    "WITH monthly AS (SELECT 1) SELECT * FROM monthly;",
			expected: "WITH monthly AS (SELECT 1) SELECT * FROM monthly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("got %q, want %q", result.NormalizedSQL, tt.expected)
			}
		})
	}
}

func TestValidateAndNormalize_MultipleStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "two selects",
			input: "SELECT 1; SELECT 2",
		},
		{
			name:  "select then drop",
			input: "SELECT * FROM products; DROP TABLE products",
		},
		{
			name:  "semicolon mid statement",
			input: "SELECT 1;\nSELECT 2;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != ErrMultipleStatements {
				t.Errorf("got error %v, want ErrMultipleStatements", result.Error)
			}
		})
	}
}

func TestValidateAndNormalize_WriteStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "insert", input: "INSERT INTO products VALUES (1)"},
		{name: "update", input: "UPDATE products SET product_name = 'x'"},
		{name: "delete", input: "DELETE FROM products"},
		{name: "drop", input: "DROP TABLE products"},
		{name: "create", input: "CREATE TABLE t (id int)"},
		{name: "alter", input: "ALTER TABLE products ADD COLUMN x int"},
		{name: "truncate", input: "TRUNCATE products"},
		{name: "grant", input: "GRANT SELECT ON products TO reader"},
		{name: "lowercase insert", input: "insert into products values (1)"},
		{name: "leading whitespace", input: "   DELETE FROM products"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != ErrNotReadOnly {
				t.Errorf("got error %v, want ErrNotReadOnly", result.Error)
			}
		})
	}
}

func TestValidateAndNormalize_EmptyInput(t *testing.T) {
	result := ValidateAndNormalize("   ")
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.NormalizedSQL != "" {
		t.Errorf("got %q, want empty", result.NormalizedSQL)
	}
}
