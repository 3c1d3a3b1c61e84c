package logging

import (
	"regexp"
	"strings"
)

// secretKeyPattern matches config keys whose values must never be logged.
var secretKeyPattern = regexp.MustCompile(`(?i)(password|secret|api[_-]?key|token|credential)`)

// connStringPassword matches password segments inside connection strings.
var connStringPassword = regexp.MustCompile(`(?i)(password=)[^ ;]+`)

// SanitizeValue returns the value to log for a config key, masking it when
// the key looks secret-bearing.
func SanitizeValue(key, value string) string {
	if value == "" {
		return ""
	}
	if secretKeyPattern.MatchString(key) {
		return Mask(value)
	}
	return value
}

// SanitizeConnString masks the password segment of a key=value connection
// string before it is logged.
func SanitizeConnString(conn string) string {
	return connStringPassword.ReplaceAllString(conn, "${1}****")
}

// Mask keeps the first two characters of a secret so operators can tell
// which key is configured, and hides the rest.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", 6)
}
