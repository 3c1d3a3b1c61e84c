package apperrors

import (
	"context"
	"errors"
	"regexp"
)

// classificationRule maps a message pattern to an error kind. Rules are
// evaluated in order; the first match wins.
type classificationRule struct {
	pattern *regexp.Regexp
	kind    Kind
}

var classificationRules = []classificationRule{
	{regexp.MustCompile(`(?i)permission denied|access denied|not authorized|insufficient privilege`), KindPermission},
	{regexp.MustCompile(`(?i)syntax error|unexpected token|parse error|unterminated`), KindSyntax},
	{regexp.MustCompile(`(?i)column .* does not exist|column .* (is )?unknown|no such column|invalid column name`), KindSemantic},
	{regexp.MustCompile(`(?i)relation .* does not exist|table .* does not exist|invalid object name|no such table`), KindSemantic},
	{regexp.MustCompile(`(?i)function .* does not exist|operator does not exist|cannot cast|invalid input syntax`), KindSemantic},
	{regexp.MustCompile(`(?i)ambiguous`), KindAmbiguous},
	{regexp.MustCompile(`(?i)dataset .* not found|database .* does not exist`), KindNotFound},
	{regexp.MustCompile(`(?i)rate limit|too many requests|\b429\b|quota exceeded`), KindRateLimit},
	{regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded|canceling statement due to statement timeout`), KindTimeout},
	{regexp.MustCompile(`(?i)connection refused|connection reset|no such host|broken pipe|network|EOF|\b50[234]\b`), KindNetwork},
	{regexp.MustCompile(`(?i)exceeds .*limit|scan limit|would process`), KindValidation},
}

// Classify categorises a raw error by pattern-matching its message. Already
// classified errors pass through untouched.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, "operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		e := Wrap(KindValidation, "request cancelled", err)
		e.Cancelled = true
		e.Retryable = false
		return e
	}

	msg := err.Error()
	for _, rule := range classificationRules {
		if rule.pattern.MatchString(msg) {
			return Wrap(rule.kind, msg, err)
		}
	}

	e := Wrap(KindUnknown, msg, err)
	e.Retryable = true // unknown errors get one retry
	return e
}
