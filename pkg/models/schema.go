package models

import (
	"fmt"
	"strings"
)

// ColumnDescriptor describes a single warehouse column.
type ColumnDescriptor struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Nullable    bool   `json:"nullable" yaml:"nullable"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TableDescriptor is schema-level metadata for a warehouse table,
// excluding row values. Owned by the catalog; immutable until refresh.
type TableDescriptor struct {
	Project     string             `json:"project,omitempty"`
	Dataset     string             `json:"dataset"`
	TableName   string             `json:"table_name"`
	Description string             `json:"description,omitempty"`
	RowCount    int64              `json:"row_count"`
	Columns     []ColumnDescriptor `json:"columns"`
}

// QualifiedName returns the fully-qualified identifier, skipping empty parts.
func (t *TableDescriptor) QualifiedName() string {
	parts := make([]string, 0, 3)
	if t.Project != "" {
		parts = append(parts, t.Project)
	}
	if t.Dataset != "" {
		parts = append(parts, t.Dataset)
	}
	parts = append(parts, t.TableName)
	return strings.Join(parts, ".")
}

// CombinedText flattens the descriptor into a single string suitable for
// embedding. Column names and types carry most of the retrieval signal.
func (t *TableDescriptor) CombinedText() string {
	var b strings.Builder
	b.WriteString(t.TableName)
	if t.Description != "" {
		b.WriteString(": ")
		b.WriteString(t.Description)
	}
	b.WriteString(". Columns: ")
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.Name)
		b.WriteString(" (")
		b.WriteString(col.Type)
		b.WriteString(")")
		if col.Description != "" {
			b.WriteString(" ")
			b.WriteString(col.Description)
		}
	}
	return b.String()
}

// Column returns the descriptor for the named column, or nil.
func (t *TableDescriptor) Column(name string) *ColumnDescriptor {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *TableDescriptor) String() string {
	return fmt.Sprintf("%s (%d columns, ~%d rows)", t.QualifiedName(), len(t.Columns), t.RowCount)
}
