// Package sql provides dialect-neutral SQL inspection utilities used by the
// generator, validator and executors.
package sql

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains more than one
	// SQL statement; only single statements are permitted.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")

	// ErrNotReadOnly indicates the statement is DDL or DML rather than a
	// read-only query.
	ErrNotReadOnly = errors.New("only read-only SELECT statements are allowed")
)

var writeKeyword = regexp.MustCompile(`(?i)^\s*(INSERT|UPDATE|DELETE|MERGE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE)\b`)

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize strips the trailing semicolon, rejects multiple
// statements, and refuses anything that is not a read-only query.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	if writeKeyword.MatchString(normalized) {
		return ValidationResult{Error: ErrNotReadOnly}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handles both backslash escape (\') and SQL doubled quote ('')
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
