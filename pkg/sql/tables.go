package sql

import (
	"regexp"
	"sort"
	"strings"
)

// tableRef matches identifiers following FROM or JOIN, including
// project.dataset.table forms and quoted parts.
var tableRef = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_"` + "`" + `][\w."` + "`" + `-]*)`)

// cteName matches names defined in a WITH clause; those are not warehouse
// tables and are excluded from tables_used.
var cteName = regexp.MustCompile(`(?i)(?:\bWITH\b|,)\s*([a-zA-Z_]\w*)\s+AS\s*\(`)

// ExtractTables parses the fully-qualified table identifiers referenced by
// a statement. CTE names are skipped; results are deduplicated and sorted
// for stable cache comparisons.
func ExtractTables(sqlQuery string) []string {
	ctes := make(map[string]bool)
	for _, m := range cteName.FindAllStringSubmatch(sqlQuery, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	seen := make(map[string]bool)
	var tables []string
	for _, m := range tableRef.FindAllStringSubmatch(sqlQuery, -1) {
		name := strings.Trim(m[1], `"` + "`")
		if name == "" {
			continue
		}
		// A bare reference that names a CTE is not a table.
		if ctes[strings.ToLower(name)] {
			continue
		}
		// Subquery opener, not an identifier.
		if strings.HasPrefix(name, "(") {
			continue
		}
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			tables = append(tables, name)
		}
	}

	sort.Strings(tables)
	return tables
}
