package llm

import (
	"strings"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
)

// ClassifyProviderError maps a provider SDK error onto the shared taxonomy.
// LLM failures surface as rate_limit, timeout or network so the error
// handler can apply the right backoff.
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota"):
		return apperrors.Wrap(apperrors.KindRateLimit, "llm rate limited", err)

	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		return apperrors.Wrap(apperrors.KindPermission, "llm authentication failed", err)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return apperrors.Wrap(apperrors.KindTimeout, "llm request timed out", err)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return apperrors.Wrap(apperrors.KindNetwork, "llm endpoint unreachable", err)

	default:
		return apperrors.Wrap(apperrors.KindNetwork, "llm request failed", err)
	}
}
