package apperrors

import (
	"time"

	"go.uber.org/zap"
)

// ErrorContext carries everything known about a failure when the handler
// decides what to do with it.
type ErrorContext struct {
	Kind            Kind      `json:"kind"`
	OriginalMessage string    `json:"original_message"`
	SQL             string    `json:"sql,omitempty"`
	Question        string    `json:"question"`
	Tables          []string  `json:"tables,omitempty"`
	RetryCount      int       `json:"retry_count"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
}

// Resolution is the handler's decision: what to tell the user and whether
// the orchestrator should try again.
type Resolution struct {
	Kind           Kind     `json:"kind"`
	UserMessage    string   `json:"user_message"`
	Retryable      bool     `json:"retryable"`
	Suggestions    []string `json:"suggestions,omitempty"`
	Alternatives   []string `json:"alternatives,omitempty"`
	BackoffSeconds int      `json:"backoff_seconds,omitempty"`
	// FeedbackForPrompt is set for syntax/semantic retries: the original
	// error text the composer injects as an additional instruction block.
	FeedbackForPrompt string `json:"-"`
}

// MaxRetries caps the orchestrator's retry counter regardless of kind.
const MaxRetries = 3

var userMessages = map[Kind]string{
	KindSyntax:     "The generated SQL had a syntax problem. Retrying with the error fed back to the model.",
	KindSemantic:   "The generated SQL referenced something that does not exist in the schema.",
	KindPermission: "You do not have permission to read the requested tables.",
	KindNotFound:   "The requested table or dataset was not found.",
	KindAmbiguous:  "The question matched more than one entity; please be more specific.",
	KindTimeout:    "The query took too long to run.",
	KindRateLimit:  "The language model is rate limited right now.",
	KindNetwork:    "A network problem interrupted the request.",
	KindValidation: "The query failed validation and was not executed.",
	KindUnknown:    "Something went wrong while answering the question.",
}

var suggestions = map[Kind][]string{
	KindSemantic:  {"Rephrase using column names shown in the schema endpoint", "Ask about a single table first"},
	KindTimeout:   {"Add a date filter to narrow the scan", "Ask for a smaller number of rows"},
	KindAmbiguous: {"Say whether you mean the surgeon or the distributor", "Include a last name and a first name"},
	KindValidation: {
		"Add a date filter to reduce the bytes scanned",
		"Ask about a single dataset instead of joining several",
	},
	KindNotFound: {"List available tables with GET /tables", "Check the dataset name in the request"},
}

// Handler applies the fixed retry policy to classified errors.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates an error handler. Pass zap.NewNop() in tests.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger.Named("errors")}
}

// Handle classifies err (if it is not already classified), applies the retry
// policy for its kind, and returns a user-facing resolution.
//
// Policy:
//   - permission / not_found: never retried.
//   - rate_limit: retried with backoff min(2^retryCount, 60) seconds.
//   - timeout: retried once, with a LIMIT suggestion.
//   - syntax / semantic: retried up to MaxRetries with the original error
//     fed back into the prompt.
//   - unknown: retried once.
func (h *Handler) Handle(err error, ectx *ErrorContext, retryCount int) Resolution {
	appErr := AsError(err)

	res := Resolution{
		Kind:        appErr.Kind,
		UserMessage: userMessages[appErr.Kind],
		Suggestions: suggestionsFor(appErr.Kind),
	}

	switch appErr.Kind {
	case KindPermission, KindNotFound, KindAmbiguous, KindValidation:
		res.Retryable = false
	case KindRateLimit:
		res.Retryable = retryCount < MaxRetries
		res.BackoffSeconds = backoff(retryCount)
	case KindTimeout:
		res.Retryable = retryCount < 1
		res.Suggestions = append([]string{"Add a LIMIT clause to the query"}, res.Suggestions...)
		if len(res.Suggestions) > 3 {
			res.Suggestions = res.Suggestions[:3]
		}
	case KindSyntax, KindSemantic:
		res.Retryable = retryCount < MaxRetries
		res.FeedbackForPrompt = appErr.Message
	case KindNetwork:
		res.Retryable = retryCount < MaxRetries
		res.BackoffSeconds = backoff(retryCount)
	default:
		res.Retryable = retryCount < 1
	}

	if retryCount >= MaxRetries {
		res.Retryable = false
	}

	h.logger.Warn("query error handled",
		zap.String("kind", string(appErr.Kind)),
		zap.String("stage", appErr.Stage),
		zap.Int("retry_count", retryCount),
		zap.Bool("retryable", res.Retryable),
		zap.String("question", ectx.Question),
		zap.Error(err))

	return res
}

// NewContext builds an ErrorContext from a classified error.
func NewContext(err error, question string, retryCount int) *ErrorContext {
	appErr := AsError(err)
	return &ErrorContext{
		Kind:            appErr.Kind,
		OriginalMessage: appErr.Message,
		SQL:             appErr.SQL,
		Question:        question,
		RetryCount:      retryCount,
		FirstSeenAt:     time.Now().UTC(),
	}
}

func backoff(retryCount int) int {
	b := 1 << retryCount
	if b > 60 {
		return 60
	}
	return b
}

func suggestionsFor(kind Kind) []string {
	s := suggestions[kind]
	if len(s) > 3 {
		return s[:3]
	}
	return s
}
