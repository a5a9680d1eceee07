package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"insights-agent/internal/domain"
)

const defaultHistoryPage = 20

// ResultService is the read side of the pipeline: conversation history pages
// and poll responses for in-flight or completed queries.
type ResultService struct {
	store     ConversationStore
	blobs     BlobStore
	cache     ResultCache
	pageLimit int
	cacheTTL  time.Duration
}

// PollStatus values returned to callers. PENDING covers every record whose
// execution has not reached a terminal state yet.
const (
	PollPending   = "PENDING"
	PollCompleted = domain.StatusCompleted
	PollFailed    = domain.StatusFailed
)

type HistoryOutput struct {
	Conversations []domain.ConversationRecord
	Count         int
}

type PollOutput struct {
	Status      string
	Columns     []string
	Rows        []map[string]string
	ResultCount int
	Error       string
}

func NewResultService(store ConversationStore, blobs BlobStore, cache ResultCache, pageLimit int, cacheTTL time.Duration) (*ResultService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if blobs == nil {
		return nil, errors.New("usecase: blob store must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: result cache must not be nil")
	}
	if pageLimit <= 0 {
		pageLimit = defaultHistoryPage
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &ResultService{store: store, blobs: blobs, cache: cache, pageLimit: pageLimit, cacheTTL: cacheTTL}, nil
}

// GetHistory returns the user's most recent conversations, newest first.
func (s *ResultService) GetHistory(ctx context.Context, userID string) (HistoryOutput, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return HistoryOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	recs, err := s.store.GetHistory(ctx, userID, s.pageLimit)
	if err != nil {
		return HistoryOutput{}, newError(ErrorInternal, "history_query_error", err)
	}
	return HistoryOutput{Conversations: recs, Count: len(recs)}, nil
}

// PollResult reports the state of one conversation. The record's status is
// authoritative; result rows are served from the cache when present and
// recomputed from the durable blob on a miss (re-warming the cache).
func (s *ResultService) PollResult(ctx context.Context, userID, conversationID string) (PollOutput, error) {
	userID = strings.TrimSpace(userID)
	conversationID = strings.TrimSpace(conversationID)
	if userID == "" || conversationID == "" {
		return PollOutput{}, newError(ErrorInvalidInput, "missing_keys", nil)
	}

	rec, found, err := s.store.Get(ctx, userID, conversationID)
	if err != nil {
		return PollOutput{}, newError(ErrorInternal, "record_read_error", err)
	}
	if !found {
		return PollOutput{}, newError(ErrorNotFound, "unknown_conversation", nil)
	}

	switch rec.ResultStatus {
	case domain.StatusFailed:
		return PollOutput{Status: PollFailed, Error: rec.ErrorMessage}, nil
	case domain.StatusCompleted:
		return s.completedOutput(ctx, userID, conversationID)
	default:
		return PollOutput{Status: PollPending}, nil
	}
}

func (s *ResultService) completedOutput(ctx context.Context, userID, conversationID string) (PollOutput, error) {
	key := cacheKey(userID, conversationID)

	if data, hit, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("cache read failed, falling back to blob store", "conversationId", conversationID, "err", err)
	} else if hit {
		var formatted domain.FormattedResult
		if err := json.Unmarshal(data, &formatted); err == nil {
			return PollOutput{
				Status:      PollCompleted,
				Columns:     formatted.Columns,
				Rows:        formatted.Rows,
				ResultCount: formatted.ResultCount,
			}, nil
		}
		slog.Warn("cache entry undecodable, falling back to blob store", "conversationId", conversationID)
	}

	data, err := s.blobs.Get(ctx, rawResultKey(userID, conversationID))
	if err != nil {
		return PollOutput{}, newError(ErrorInternal, "blob_fallback_error", err)
	}
	var raw domain.RawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return PollOutput{}, newError(ErrorInternal, "blob_decode_error", err)
	}

	// Re-warm the cache with what the fallback fetched.
	formatted := domain.FormattedResult{
		UserID:         userID,
		ConversationID: conversationID,
		Columns:        raw.Columns,
		Rows:           raw.Rows,
		ResultCount:    raw.ResultCount,
		ExecutionTime:  raw.ExecutionTime,
		FormattedTime:  timeNow().UTC().Format(time.RFC3339),
	}
	if encoded, err := json.Marshal(formatted); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.cacheTTL); err != nil {
			slog.Warn("cache re-warm failed", "conversationId", conversationID, "err", err)
		}
	}

	return PollOutput{
		Status:      PollCompleted,
		Columns:     raw.Columns,
		Rows:        raw.Rows,
		ResultCount: raw.ResultCount,
	}, nil
}
