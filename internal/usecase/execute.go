package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"insights-agent/internal/domain"
	"insights-agent/internal/integrations/athena"
)

const (
	defaultPollInterval    = 500 * time.Millisecond
	defaultMaxPollAttempts = 20
	defaultMaxResultRows   = 1000
)

// pollOutcome is the orchestrator-side terminal classification of one
// execution. It extends the engine's own states with TIMEOUT: the engine may
// still be running, but this orchestrator stopped waiting.
type pollOutcome string

const (
	outcomeSucceeded pollOutcome = "SUCCEEDED"
	outcomeFailed    pollOutcome = "FAILED"
	outcomeCancelled pollOutcome = "CANCELLED"
	outcomeTimedOut  pollOutcome = "TIMEOUT"
)

// ExecuteConfig carries the orchestrator's polling and result tunables.
type ExecuteConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	MaxResultRows   int32
}

func (c ExecuteConfig) withDefaults() ExecuteConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.MaxResultRows <= 0 {
		c.MaxResultRows = defaultMaxResultRows
	}
	return c
}

// ExecuteService consumes dispatch messages: it submits the SQL to the
// execution engine, polls to a terminal outcome, persists the raw result to
// the blob store, and triggers the formatter.
type ExecuteService struct {
	store   ConversationStore
	engine  ExecutionEngine
	blobs   BlobStore
	invoker FormatterInvoker
	cfg     ExecuteConfig
}

func NewExecuteService(store ConversationStore, engine ExecutionEngine, blobs BlobStore, inv FormatterInvoker, cfg ExecuteConfig) (*ExecuteService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if engine == nil {
		return nil, errors.New("usecase: execution engine must not be nil")
	}
	if blobs == nil {
		return nil, errors.New("usecase: blob store must not be nil")
	}
	if inv == nil {
		return nil, errors.New("usecase: formatter invoker must not be nil")
	}
	return &ExecuteService{
		store:   store,
		engine:  engine,
		blobs:   blobs,
		invoker: inv,
		cfg:     cfg.withDefaults(),
	}, nil
}

// HandleMessage processes one dispatch message to completion. The queue
// delivers at least once, so a message whose record is already terminal is
// skipped; a duplicate racing past that guard rewrites the same blob key and
// re-invokes the formatter, whose effects are idempotent.
func (s *ExecuteService) HandleMessage(ctx context.Context, msg domain.DispatchMessage) error {
	if msg.UserID == "" || msg.ConversationID == "" {
		return newError(ErrorInvalidInput, "message_missing_keys", nil)
	}
	if msg.SQLQuery == "" {
		return s.fail(ctx, msg, "message_missing_sql", errors.New("dispatch message has no sql"))
	}

	rec, found, err := s.store.Get(ctx, msg.UserID, msg.ConversationID)
	if err != nil {
		slog.Warn("duplicate-delivery guard read failed, processing anyway",
			"conversationId", msg.ConversationID, "err", err)
	}
	if found && rec.Terminal() {
		slog.Info("skipping already-terminal conversation",
			"conversationId", msg.ConversationID, "status", rec.ResultStatus)
		return nil
	}

	executionID, err := s.engine.StartQuery(ctx, msg.SQLQuery, msg.UserID, msg.ConversationID)
	if err != nil {
		return s.fail(ctx, msg, "engine_start_error", err)
	}

	outcome, reason, err := s.waitForCompletion(ctx, executionID)
	if err != nil {
		return s.fail(ctx, msg, "engine_poll_error", err)
	}
	switch outcome {
	case outcomeSucceeded:
		// fall through to result handling
	case outcomeFailed:
		return s.fail(ctx, msg, "query_failed", fmt.Errorf("query execution failed: %s", reason))
	case outcomeCancelled:
		return s.fail(ctx, msg, "query_cancelled", fmt.Errorf("query execution was cancelled: %s", reason))
	case outcomeTimedOut:
		return s.fail(ctx, msg, "query_timeout",
			fmt.Errorf("query still running after %d polls", s.cfg.MaxPollAttempts))
	}

	page, err := s.engine.QueryResults(ctx, executionID, s.cfg.MaxResultRows)
	if err != nil {
		return s.fail(ctx, msg, "engine_results_error", err)
	}

	raw := domain.RawResult{
		UserID:           msg.UserID,
		ConversationID:   msg.ConversationID,
		QueryExecutionID: executionID,
		Columns:          page.Columns,
		Rows:             page.Rows,
		ResultCount:      len(page.Rows),
		ExecutionTime:    timeNow().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return s.fail(ctx, msg, "result_marshal_error", err)
	}

	location, err := s.blobs.Put(ctx, rawResultKey(msg.UserID, msg.ConversationID), data)
	if err != nil {
		return s.fail(ctx, msg, "blob_write_error", err)
	}

	err = s.invoker.InvokeFormatter(ctx, domain.FormatRequest{
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		ResultLocation: location,
	})
	if err != nil {
		// The blob is durable; a retried delivery re-invokes the formatter.
		return s.fail(ctx, msg, "formatter_invoke_error", err)
	}

	slog.Info("execution completed",
		"conversationId", msg.ConversationID, "executionId", executionID, "rows", raw.ResultCount)
	return nil
}

// waitForCompletion polls the engine until it reports a terminal state or
// the attempt cap is spent. QUEUED and RUNNING share the same attempt
// budget; exhausting it is an explicit TIMEOUT outcome, never a silent
// exit with a stale status. Each wait is a timer, not a spin, and honors
// context cancellation.
func (s *ExecuteService) waitForCompletion(ctx context.Context, executionID string) (pollOutcome, string, error) {
	for attempt := 0; attempt < s.cfg.MaxPollAttempts; attempt++ {
		if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
			return "", "", err
		}

		st, err := s.engine.QueryStatus(ctx, executionID)
		if err != nil {
			return "", "", err
		}

		switch st.State {
		case athena.StateSucceeded:
			return outcomeSucceeded, "", nil
		case athena.StateFailed:
			return outcomeFailed, st.Reason, nil
		case athena.StateCancelled:
			return outcomeCancelled, st.Reason, nil
		case athena.StateQueued, athena.StateRunning:
			// keep polling
		default:
			return "", "", fmt.Errorf("unknown execution state %q", st.State)
		}
	}
	return outcomeTimedOut, "", nil
}

// fail records the terminal FAILED state and returns the execution failure.
// The status write is best-effort: the failure is reported either way.
func (s *ExecuteService) fail(ctx context.Context, msg domain.DispatchMessage, reason string, cause error) error {
	if err := s.store.MarkFailed(ctx, msg.UserID, msg.ConversationID, cause.Error()); err != nil {
		slog.Error("failed to record execution failure",
			"conversationId", msg.ConversationID, "err", err)
	}
	return newError(ErrorExecutionFailed, reason, cause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
