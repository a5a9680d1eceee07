package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"insights-agent/internal/domain"
)

func mustResultService(t *testing.T, store *mockStore, blobs *mockBlobs, cache *mockCache) *ResultService {
	t.Helper()
	s, err := NewResultService(store, blobs, cache, 20, time.Hour)
	require.NoError(t, err)
	return s
}

func formattedJSON(t *testing.T, count int) []byte {
	t.Helper()
	data, err := json.Marshal(domain.FormattedResult{
		UserID:         "u1",
		ConversationID: "100-a",
		Columns:        []string{"app_name"},
		Rows:           []map[string]string{{"app_name": "maps"}},
		ResultCount:    count,
		FormattedTime:  "2026-09-01T12:00:10Z",
	})
	require.NoError(t, err)
	return data
}

func TestGetHistory_HappyPath(t *testing.T) {
	store := &mockStore{history: []domain.ConversationRecord{
		{ConversationID: "200-b", Query: "second"},
		{ConversationID: "100-a", Query: "first"},
	}}
	s := mustResultService(t, store, &mockBlobs{}, &mockCache{})

	out, err := s.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.Equal(t, "200-b", out.Conversations[0].ConversationID)
}

func TestGetHistory_EmptyUser(t *testing.T) {
	s := mustResultService(t, &mockStore{}, &mockBlobs{}, &mockCache{})
	_, err := s.GetHistory(context.Background(), " ")
	requireCode(t, err, ErrorInvalidInput)
}

func TestGetHistory_StoreError(t *testing.T) {
	s := mustResultService(t, &mockStore{historyErr: errors.New("boom")}, &mockBlobs{}, &mockCache{})
	_, err := s.GetHistory(context.Background(), "u1")
	requireCode(t, err, ErrorInternal)
}

func TestPollResult_UnknownConversation(t *testing.T) {
	s := mustResultService(t, &mockStore{getFound: false}, &mockBlobs{}, &mockCache{})
	_, err := s.PollResult(context.Background(), "u1", "100-a")
	requireCode(t, err, ErrorNotFound)
}

func TestPollResult_PendingWhileNonTerminal(t *testing.T) {
	store := &mockStore{getFound: true, getRec: domain.ConversationRecord{ConversationID: "100-a"}}
	s := mustResultService(t, store, &mockBlobs{}, &mockCache{})

	out, err := s.PollResult(context.Background(), "u1", "100-a")
	require.NoError(t, err)
	require.Equal(t, PollPending, out.Status)
	require.Empty(t, out.Rows)
}

func TestPollResult_FailedSurfacesReason(t *testing.T) {
	store := &mockStore{getFound: true, getRec: domain.ConversationRecord{
		ResultStatus: domain.StatusFailed,
		ErrorMessage: "query execution was cancelled: cancelled by user",
	}}
	s := mustResultService(t, store, &mockBlobs{}, &mockCache{})

	out, err := s.PollResult(context.Background(), "u1", "100-a")
	require.NoError(t, err)
	require.Equal(t, PollFailed, out.Status)
	require.Contains(t, out.Error, "cancelled by user")
}

func TestPollResult_CompletedFromCache(t *testing.T) {
	store := &mockStore{getFound: true, getRec: domain.ConversationRecord{ResultStatus: domain.StatusCompleted}}
	blobs := &mockBlobs{getErr: errors.New("should not be called")}
	cache := &mockCache{getData: formattedJSON(t, 1), getHit: true}
	s := mustResultService(t, store, blobs, cache)

	out, err := s.PollResult(context.Background(), "u1", "100-a")
	require.NoError(t, err)
	require.Equal(t, PollCompleted, out.Status)
	require.Equal(t, 1, out.ResultCount)
	require.Equal(t, []string{"app_name"}, out.Columns)
	require.Empty(t, blobs.lastGet)
}

func TestPollResult_CacheMissFallsBackToBlobAndRewarms(t *testing.T) {
	store := &mockStore{getFound: true, getRec: domain.ConversationRecord{ResultStatus: domain.StatusCompleted}}
	raw, err := json.Marshal(domain.RawResult{
		Columns:     []string{"app_name"},
		Rows:        []map[string]string{{"app_name": "maps"}, {"app_name": "mail"}},
		ResultCount: 2,
	})
	require.NoError(t, err)
	blobs := &mockBlobs{getData: raw}
	cache := &mockCache{getHit: false}
	s := mustResultService(t, store, blobs, cache)

	out, err := s.PollResult(context.Background(), "u1", "100-a")
	require.NoError(t, err)
	require.Equal(t, PollCompleted, out.Status)
	require.Equal(t, 2, out.ResultCount)
	require.Equal(t, "processed-results/u1/100-a/result.json", blobs.lastGet)

	rewarmed, ok := cache.sets["result:u1:100-a"]
	require.True(t, ok)
	var formatted domain.FormattedResult
	require.NoError(t, json.Unmarshal(rewarmed, &formatted))
	require.Equal(t, 2, formatted.ResultCount)
}

func TestPollResult_CacheErrorFallsBackToBlob(t *testing.T) {
	store := &mockStore{getFound: true, getRec: domain.ConversationRecord{ResultStatus: domain.StatusCompleted}}
	raw, err := json.Marshal(domain.RawResult{Columns: []string{"a"}, ResultCount: 0})
	require.NoError(t, err)
	blobs := &mockBlobs{getData: raw}
	s := mustResultService(t, store, blobs, &mockCache{getErr: errors.New("redis down")})

	out, err := s.PollResult(context.Background(), "u1", "100-a")
	require.NoError(t, err)
	require.Equal(t, PollCompleted, out.Status)
}

func TestPollResult_BlobFallbackError(t *testing.T) {
	store := &mockStore{getFound: true, getRec: domain.ConversationRecord{ResultStatus: domain.StatusCompleted}}
	s := mustResultService(t, store, &mockBlobs{getErr: errors.New("gone")}, &mockCache{})
	_, err := s.PollResult(context.Background(), "u1", "100-a")
	requireCode(t, err, ErrorInternal)
}

func TestPollResult_MissingKeys(t *testing.T) {
	s := mustResultService(t, &mockStore{}, &mockBlobs{}, &mockCache{})
	_, err := s.PollResult(context.Background(), "", "100-a")
	requireCode(t, err, ErrorInvalidInput)
}
