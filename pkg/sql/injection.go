package sql

import (
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a string literal that tripped the
// injection detector.
type InjectionCheckResult struct {
	Fingerprint string
	Value       string
}

var stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)

// CheckValue screens a single value (typically an entity filter) for SQL
// injection patterns. Returns nil when the value is clean.
func CheckValue(value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{Fingerprint: string(fingerprint), Value: value}
}

// CheckLiterals screens every string literal inside a generated statement.
// The generator refuses to execute SQL whose literals carry injection
// fingerprints; the model should only ever emit plain names and dates.
func CheckLiterals(sqlQuery string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, lit := range stringLiteral.FindAllString(sqlQuery, -1) {
		inner := lit[1 : len(lit)-1]
		if r := CheckValue(inner); r != nil {
			results = append(results, r)
		}
	}
	return results
}
