package usecase

import (
	"context"
	"fmt"
	"time"

	"insights-agent/internal/domain"
	"insights-agent/internal/integrations/athena"
)

// Collaborator interfaces consumed by the pipeline services. Each is the
// minimal surface a service needs; the concrete integration clients satisfy
// them.

// ConversationStore is the durable per-user conversation record store.
type ConversationStore interface {
	GetHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error)
	Get(ctx context.Context, userID, conversationID string) (domain.ConversationRecord, bool, error)
	Put(ctx context.Context, rec domain.ConversationRecord) error
	MarkCompleted(ctx context.Context, userID, conversationID string, resultCount int, executionTime string) error
	MarkFailed(ctx context.Context, userID, conversationID, reason string) error
	Prune(ctx context.Context, userID string) (int, error)
}

// Translator converts a question plus history context into a SQL string.
type Translator interface {
	Translate(ctx context.Context, question string, history []domain.ConversationRecord) (string, error)
}

// Dispatcher carries dispatch messages to the execution stage.
type Dispatcher interface {
	Send(ctx context.Context, msg domain.DispatchMessage) error
}

// ExecutionEngine runs SQL asynchronously and exposes a pollable status.
type ExecutionEngine interface {
	StartQuery(ctx context.Context, sql, userID, conversationID string) (string, error)
	QueryStatus(ctx context.Context, executionID string) (athena.Status, error)
	QueryResults(ctx context.Context, executionID string, maxRows int32) (athena.ResultPage, error)
}

// BlobStore is the durable result object store. Put returns the written
// object's location URI.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// ResultCache is the short-lived formatted-result cache. Get reports a miss
// through the boolean, not an error.
type ResultCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// FormatterInvoker triggers the formatting stage after execution succeeds.
type FormatterInvoker interface {
	InvokeFormatter(ctx context.Context, req domain.FormatRequest) error
}

// rawResultKey is the deterministic blob key for a conversation's RawResult.
func rawResultKey(userID, conversationID string) string {
	return fmt.Sprintf("processed-results/%s/%s/result.json", userID, conversationID)
}

// cacheKey is the cache key for a conversation's FormattedResult.
func cacheKey(userID, conversationID string) string {
	return fmt.Sprintf("result:%s:%s", userID, conversationID)
}
