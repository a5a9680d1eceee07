package domain

// Result statuses recorded on a conversation once execution reaches a
// terminal state. A record has no status while translation and execution
// are still in flight.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// ConversationRecord is a single persisted query turn for a user.
type ConversationRecord struct {
	UserID         string
	ConversationID string
	Query          string
	SQLQuery       string
	Timestamp      string
	ResultStatus   string
	ResultCount    int
	ExecutionTime  string
	ErrorMessage   string
	ExpirationTime int64
}

// Terminal reports whether execution of this record already finished,
// successfully or not.
func (r ConversationRecord) Terminal() bool {
	return r.ResultStatus == StatusCompleted || r.ResultStatus == StatusFailed
}
