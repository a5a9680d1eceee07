package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"insights-agent/internal/domain"
	"insights-agent/internal/integrations/s3blob"
)

const defaultCacheTTL = time.Hour

// FormatService turns a persisted RawResult into a cached FormattedResult
// and settles the conversation record. The cache write and the record update
// are independent calls with no cross-store transaction; both are idempotent
// so duplicate invocations and partial completions converge. The record is
// authoritative, the cache is an availability aid.
type FormatService struct {
	store    ConversationStore
	blobs    BlobStore
	cache    ResultCache
	cacheTTL time.Duration
}

func NewFormatService(store ConversationStore, blobs BlobStore, cache ResultCache, cacheTTL time.Duration) (*FormatService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if blobs == nil {
		return nil, errors.New("usecase: blob store must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: result cache must not be nil")
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &FormatService{store: store, blobs: blobs, cache: cache, cacheTTL: cacheTTL}, nil
}

// Format fetches the raw result named by req, caches its formatted shape,
// and marks the record COMPLETED. A failed cache write is logged and the
// record update still runs; a failed record update is the reported error
// since it leaves the observable status non-terminal.
func (s *FormatService) Format(ctx context.Context, req domain.FormatRequest) error {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ConversationID) == "" {
		return newError(ErrorInvalidInput, "request_missing_keys", nil)
	}

	key := rawResultKey(req.UserID, req.ConversationID)
	if req.ResultLocation != "" {
		_, parsedKey, err := s3blob.ParseLocation(req.ResultLocation)
		if err != nil {
			return newError(ErrorInvalidInput, "bad_result_location", err)
		}
		key = parsedKey
	}

	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return newError(ErrorFormattingFailed, "blob_fetch_error", err)
	}

	var raw domain.RawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return newError(ErrorFormattingFailed, "blob_decode_error", err)
	}

	formatted := domain.FormattedResult{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Columns:        raw.Columns,
		Rows:           raw.Rows,
		ResultCount:    raw.ResultCount,
		ExecutionTime:  raw.ExecutionTime,
		FormattedTime:  timeNow().UTC().Format(time.RFC3339),
	}
	encoded, err := json.Marshal(formatted)
	if err != nil {
		return newError(ErrorFormattingFailed, "cache_encode_error", err)
	}

	if err := s.cache.Set(ctx, cacheKey(req.UserID, req.ConversationID), encoded, s.cacheTTL); err != nil {
		// Cache loss only costs the read side a blob fetch; the durable
		// update below still decides the record's fate.
		slog.Warn("cache write failed", "conversationId", req.ConversationID, "err", err)
	}

	if err := s.store.MarkCompleted(ctx, req.UserID, req.ConversationID, raw.ResultCount, raw.ExecutionTime); err != nil {
		return newError(ErrorFormattingFailed, "record_update_error", err)
	}

	if pruned, err := s.store.Prune(ctx, req.UserID); err != nil {
		slog.Warn("retention prune failed", "userId", req.UserID, "pruned", pruned, "err", err)
	}

	slog.Info("result formatted",
		"conversationId", req.ConversationID, "resultCount", raw.ResultCount)
	return nil
}
