package models

// JoinType is the SQL join flavour recorded for a relationship.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

// Cardinality classifies the relationship between two tables.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// JoinKey pairs a source column with its target column.
type JoinKey struct {
	SourceColumn string `json:"source_column" yaml:"source_column"`
	TargetColumn string `json:"target_column" yaml:"target_column"`
}

// JoinRelationship is a directed edge in the join graph. Reverse traversal
// is implicit: see Reverse.
type JoinRelationship struct {
	SourceTable string      `json:"source_table" yaml:"source_table"`
	TargetTable string      `json:"target_table" yaml:"target_table"`
	JoinKeys    []JoinKey   `json:"join_keys" yaml:"join_keys"`
	JoinType    JoinType    `json:"join_type" yaml:"join_type"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
}

// Reverse returns the relationship seen from the target side: column pairs
// are swapped and left/right join types are flipped. Inner and full joins
// are symmetric.
func (r JoinRelationship) Reverse() JoinRelationship {
	rev := JoinRelationship{
		SourceTable: r.TargetTable,
		TargetTable: r.SourceTable,
		JoinType:    r.JoinType,
		Cardinality: r.Cardinality,
		JoinKeys:    make([]JoinKey, len(r.JoinKeys)),
	}
	for i, k := range r.JoinKeys {
		rev.JoinKeys[i] = JoinKey{SourceColumn: k.TargetColumn, TargetColumn: k.SourceColumn}
	}
	switch r.JoinType {
	case JoinLeft:
		rev.JoinType = JoinRight
	case JoinRight:
		rev.JoinType = JoinLeft
	}
	return rev
}
