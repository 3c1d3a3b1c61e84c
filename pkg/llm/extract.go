package llm

import (
	"regexp"
	"strings"
)

var fencedSQLBlock = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

// statementStart finds the first SQL statement when the model answered
// without a fenced block.
var statementStart = regexp.MustCompile(`(?is)\b(SELECT|WITH)\b.*`)

// ExtractSQL pulls the SQL statement out of a model response. It prefers a
// fenced code block, falls back to the first SELECT/WITH, and strips any
// trailing semicolon. Returns "" when the response contains no SQL.
func ExtractSQL(response string) string {
	var sql string

	if m := fencedSQLBlock.FindStringSubmatch(response); m != nil {
		sql = m[1]
	} else if m := statementStart.FindString(response); m != "" {
		sql = m
	}

	sql = strings.TrimSpace(sql)
	sql = strings.TrimRight(sql, ";")
	return strings.TrimSpace(sql)
}

// ExtractExplanation returns the prose around the SQL block, used as the
// generated query's explanation. Empty when the response was SQL only.
func ExtractExplanation(response string) string {
	explanation := fencedSQLBlock.ReplaceAllString(response, "")
	return strings.TrimSpace(explanation)
}
