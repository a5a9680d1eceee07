package usecase

import (
	"context"
	"time"

	"insights-agent/internal/domain"
	"insights-agent/internal/integrations/athena"
)

type mockStore struct {
	history     []domain.ConversationRecord
	historyErr  error
	getRec      domain.ConversationRecord
	getFound    bool
	getErr      error
	putErr      error
	completeErr error
	failErr     error
	pruneN      int
	pruneErr    error

	putRecords     []domain.ConversationRecord
	completedCalls []completedCall
	failedCalls    []failedCall
	pruneCalls     []string
}

type completedCall struct {
	userID, conversationID string
	resultCount            int
	executionTime          string
}

type failedCall struct {
	userID, conversationID, reason string
}

func (m *mockStore) GetHistory(_ context.Context, _ string, _ int) ([]domain.ConversationRecord, error) {
	return m.history, m.historyErr
}

func (m *mockStore) Get(_ context.Context, _, _ string) (domain.ConversationRecord, bool, error) {
	return m.getRec, m.getFound, m.getErr
}

func (m *mockStore) Put(_ context.Context, rec domain.ConversationRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.putRecords = append(m.putRecords, rec)
	return nil
}

func (m *mockStore) MarkCompleted(_ context.Context, userID, conversationID string, resultCount int, executionTime string) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completedCalls = append(m.completedCalls, completedCall{userID, conversationID, resultCount, executionTime})
	return nil
}

func (m *mockStore) MarkFailed(_ context.Context, userID, conversationID, reason string) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.failedCalls = append(m.failedCalls, failedCall{userID, conversationID, reason})
	return nil
}

func (m *mockStore) Prune(_ context.Context, userID string) (int, error) {
	m.pruneCalls = append(m.pruneCalls, userID)
	return m.pruneN, m.pruneErr
}

type mockTranslator struct {
	sql         string
	err         error
	lastHistory []domain.ConversationRecord
}

func (m *mockTranslator) Translate(_ context.Context, _ string, history []domain.ConversationRecord) (string, error) {
	m.lastHistory = history
	return m.sql, m.err
}

type mockDispatcher struct {
	err  error
	sent []domain.DispatchMessage
}

func (m *mockDispatcher) Send(_ context.Context, msg domain.DispatchMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockEngine struct {
	executionID string
	startErr    error
	statuses    []athena.Status
	statusErr   error
	statusCall  int
	page        athena.ResultPage
	resultsErr  error
	resultsReq  int32
	started     []string
}

func (m *mockEngine) StartQuery(_ context.Context, sql, _, _ string) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}
	m.started = append(m.started, sql)
	return m.executionID, nil
}

func (m *mockEngine) QueryStatus(_ context.Context, _ string) (athena.Status, error) {
	if m.statusErr != nil {
		return athena.Status{}, m.statusErr
	}
	idx := m.statusCall
	if idx >= len(m.statuses) {
		idx = len(m.statuses) - 1
	}
	m.statusCall++
	return m.statuses[idx], nil
}

func (m *mockEngine) QueryResults(_ context.Context, _ string, maxRows int32) (athena.ResultPage, error) {
	m.resultsReq = maxRows
	return m.page, m.resultsErr
}

type mockBlobs struct {
	putErr  error
	getData []byte
	getErr  error
	puts    map[string][]byte
	lastGet string
}

func (m *mockBlobs) Put(_ context.Context, key string, data []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[key] = data
	return "s3://results-bucket/" + key, nil
}

func (m *mockBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.lastGet = key
	return m.getData, m.getErr
}

type mockCache struct {
	setErr  error
	getData []byte
	getHit  bool
	getErr  error
	sets    map[string][]byte
	lastTTL time.Duration
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.sets == nil {
		m.sets = make(map[string][]byte)
	}
	m.sets[key] = value
	m.lastTTL = ttl
	return nil
}

func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return m.getData, m.getHit, m.getErr
}

type mockInvoker struct {
	err      error
	requests []domain.FormatRequest
}

func (m *mockInvoker) InvokeFormatter(_ context.Context, req domain.FormatRequest) error {
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, req)
	return nil
}
