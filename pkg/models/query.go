package models

import "time"

// QueryMode controls how much context the pipeline assembles.
type QueryMode string

const (
	// ModeChat uses conversation context and the generated-SQL cache.
	ModeChat QueryMode = "chat"
	// ModeResearch widens table retrieval and bypasses the cache.
	ModeResearch QueryMode = "research"
	// ModeDirect skips conversation context entirely.
	ModeDirect QueryMode = "direct"
)

// Valid reports whether the mode is one of the recognised values.
func (m QueryMode) Valid() bool {
	switch m {
	case ModeChat, ModeResearch, ModeDirect:
		return true
	}
	return false
}

// QueryStatus tracks an execution record through its lifecycle.
type QueryStatus string

const (
	StatusPending   QueryStatus = "pending"
	StatusExecuting QueryStatus = "executing"
	StatusCompleted QueryStatus = "completed"
	StatusFailed    QueryStatus = "failed"
)

// QueryExecutionRecord is one entry in the query log ring.
type QueryExecutionRecord struct {
	ExecutionID    string         `json:"execution_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Question       string         `json:"question"`
	SQL            string         `json:"sql,omitempty"`
	TablesUsed     []string       `json:"tables_used,omitempty"`
	Mode           QueryMode      `json:"mode"`
	Status         QueryStatus    `json:"status"`
	BytesProcessed int64          `json:"bytes_processed,omitempty"`
	CostEstimate   float64        `json:"cost_estimate,omitempty"`
	RowCount       int            `json:"row_count,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `json:"ended_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
