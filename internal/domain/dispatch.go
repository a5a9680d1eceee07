package domain

// DispatchMessage carries one translated query from submission to execution.
// It lives only on the queue; the queue delivers at least once, so consumers
// must tolerate seeing the same ConversationID twice.
type DispatchMessage struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
	SQLQuery       string `json:"sqlQuery"`
	Timestamp      int64  `json:"timestamp"`
}
