package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"insights-agent/internal/domain"
	"insights-agent/internal/repository"
)

const defaultHistoryContext = 30

// SubmitService accepts a natural-language question, translates it, and
// hands it to the execution stage through the dispatch queue. It returns a
// conversation ID immediately; execution completes asynchronously.
type SubmitService struct {
	store        ConversationStore
	translator   Translator
	queue        Dispatcher
	historyLimit int
}

type SubmitInput struct {
	UserID string
	Query  string
}

type SubmitOutput struct {
	ConversationID string
}

func NewSubmitService(store ConversationStore, tr Translator, queue Dispatcher, historyLimit int) (*SubmitService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if tr == nil {
		return nil, errors.New("usecase: translator must not be nil")
	}
	if queue == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryContext
	}
	return &SubmitService{
		store:        store,
		translator:   tr,
		queue:        queue,
		historyLimit: historyLimit,
	}, nil
}

// Submit runs translate -> enqueue -> persist in that order. Persisting
// only after a successful enqueue guarantees no durable record ever points
// at a message that was never sent.
func (s *SubmitService) Submit(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return SubmitOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SubmitOutput{}, newError(ErrorInvalidInput, "empty_query", nil)
	}

	// History is best-effort context; submission proceeds without it.
	history, err := s.store.GetHistory(ctx, userID, s.historyLimit)
	if err != nil {
		slog.Warn("history fetch failed, translating without context", "userId", userID, "err", err)
		history = nil
	}

	sqlQuery, err := s.translator.Translate(ctx, query, history)
	if err != nil {
		return SubmitOutput{}, newError(ErrorTranslationFailed, "translate_error", err)
	}

	now := timeNow()
	conversationID := newConversationID(now)

	msg := domain.DispatchMessage{
		UserID:         userID,
		ConversationID: conversationID,
		Query:          query,
		SQLQuery:       sqlQuery,
		Timestamp:      now.UnixMilli(),
	}
	if err := s.queue.Send(ctx, msg); err != nil {
		return SubmitOutput{}, newError(ErrorDispatchFailed, "enqueue_error", err)
	}

	rec := repository.NewRecord(userID, conversationID, query, sqlQuery, now)
	if err := s.store.Put(ctx, rec); err != nil {
		// The message is already in flight; the executor will still run and
		// its terminal update recreates result state, but the provisional
		// record is what the caller polls, so this is surfaced.
		return SubmitOutput{}, newError(ErrorInternal, "record_persist_error", err)
	}

	if pruned, err := s.store.Prune(ctx, userID); err != nil {
		slog.Warn("retention prune failed", "userId", userID, "pruned", pruned, "err", err)
	}

	return SubmitOutput{ConversationID: conversationID}, nil
}

// newConversationID prefixes a millisecond timestamp so the table's sort key
// orders records by creation time; the uuid fragment avoids collisions for
// same-millisecond submissions.
var newConversationID = func(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

var timeNow = time.Now
