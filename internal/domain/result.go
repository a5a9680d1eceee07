package domain

// RawResult is the execution-engine-shaped output persisted to the blob
// store. It is the durable source of truth for a completed query; the cache
// entry derived from it is disposable.
type RawResult struct {
	UserID           string              `json:"userId"`
	ConversationID   string              `json:"conversationId"`
	QueryExecutionID string              `json:"queryExecutionId"`
	Columns          []string            `json:"columns"`
	Rows             []map[string]string `json:"rows"`
	ResultCount      int                 `json:"resultCount"`
	ExecutionTime    string              `json:"executionTime"`
}

// FormattedResult is the presentation-shaped cache entry built from a
// RawResult.
type FormattedResult struct {
	UserID         string              `json:"userId"`
	ConversationID string              `json:"conversationId"`
	Columns        []string            `json:"columns"`
	Rows           []map[string]string `json:"rows"`
	ResultCount    int                 `json:"resultCount"`
	ExecutionTime  string              `json:"executionTime"`
	FormattedTime  string              `json:"formattedTime"`
}

// FormatRequest is the payload handed to the result formatter after a
// successful execution.
type FormatRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	ResultLocation string `json:"resultLocation"`
}
