package models

// EntityClass is the role a named thing plays in the surgical-sales domain.
type EntityClass string

const (
	ClassSurgeon     EntityClass = "surgeon"
	ClassDistributor EntityClass = "distributor"
	ClassFacility    EntityClass = "facility"
	ClassProduct     EntityClass = "product"
	ClassVendor      EntityClass = "vendor"
)

// EntityRecord resolves a bare name to its entity class and the column the
// generated SQL should filter on. Keyed case-insensitively by the resolver.
type EntityRecord struct {
	CanonicalName string      `json:"canonical_name"`
	EntityClass   EntityClass `json:"entity_class"`
	ColumnBinding string      `json:"column_binding"`
	SourceURI     string      `json:"source_uri,omitempty"`
}
