package sql

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	limitClause    = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	topClause      = regexp.MustCompile(`(?i)\bSELECT\s+TOP\b`)
	fetchClause    = regexp.MustCompile(`(?i)\bFETCH\s+(?:FIRST|NEXT)\b`)
	aggregateShape = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	groupByClause  = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
)

// HasRowLimit reports whether the statement already bounds its result set.
func HasRowLimit(sqlQuery string) bool {
	return limitClause.MatchString(sqlQuery) ||
		topClause.MatchString(sqlQuery) ||
		fetchClause.MatchString(sqlQuery)
}

// ExplicitLimit returns the statement's own LIMIT value, or 0.
func ExplicitLimit(sqlQuery string) int {
	m := limitClause.FindStringSubmatch(sqlQuery)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// IsAggregate reports whether the statement is an aggregation without
// grouping, which returns a bounded row set by construction.
func IsAggregate(sqlQuery string) bool {
	return aggregateShape.MatchString(sqlQuery) && !groupByClause.MatchString(sqlQuery)
}

// ApplyRowCap wraps the statement with a LIMIT when it lacks one and is not
// an aggregate. PostgreSQL flavour; the SQL Server adapter wraps with TOP.
func ApplyRowCap(sqlQuery string, rowCap int) string {
	if rowCap <= 0 || HasRowLimit(sqlQuery) || IsAggregate(sqlQuery) {
		return sqlQuery
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _capped LIMIT %d", sqlQuery, rowCap)
}
