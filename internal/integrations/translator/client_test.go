package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"insights-agent/internal/domain"
)

type mockParams struct {
	vals map[string]string
	err  error
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("param not found: %s", name)
	}
	return v, nil
}

func testParams() *mockParams {
	return &mockParams{vals: map[string]string{
		"/insights/translator-token": `{"token":"test-token"}`,
		"/insights/dataset_schema":   "- app_name: string\n- duration_sum: integer",
		"/insights/config/model":     "test-model",
	}}
}

func chatServer(t *testing.T, answer string, status int, capture *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": answer}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(testParams(), "/insights", WithBaseURL(baseURL))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/insights")
	require.Error(t, err)
	_, err = NewClient(testParams(), "  ")
	require.Error(t, err)
}

func TestTranslate_HappyPath(t *testing.T) {
	var captured chatRequest
	srv := chatServer(t, `{"sql":"SELECT app_name FROM usage"}`, http.StatusOK, &captured)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	sql, err := c.Translate(context.Background(), "which apps did I use", nil)
	require.NoError(t, err)
	require.Equal(t, "SELECT app_name FROM usage", sql)

	require.Equal(t, "test-model", captured.Model)
	require.NotNil(t, captured.ResponseFormat)
	require.Equal(t, "json_schema", captured.ResponseFormat.Type)
	// System prompt carries the operator-owned schema description.
	require.Contains(t, captured.Messages[0].Content, "duration_sum")
	require.Equal(t, "user", captured.Messages[len(captured.Messages)-1].Role)
	require.Equal(t, "which apps did I use", captured.Messages[len(captured.Messages)-1].Content)
}

func TestTranslate_HistoryRenderedOldestFirst(t *testing.T) {
	var captured chatRequest
	srv := chatServer(t, `{"sql":"SELECT 1"}`, http.StatusOK, &captured)
	defer srv.Close()

	history := []domain.ConversationRecord{
		{Query: "newest question", SQLQuery: "SELECT 2"},
		{Query: "oldest question", SQLQuery: "SELECT 3"},
	}
	c := newTestClient(t, srv.URL)
	_, err := c.Translate(context.Background(), "follow up", history)
	require.NoError(t, err)

	// system, old user, old assistant, new user, new assistant, current user
	require.Len(t, captured.Messages, 6)
	require.Equal(t, "oldest question", captured.Messages[1].Content)
	require.Equal(t, "SELECT 3", captured.Messages[2].Content)
	require.Equal(t, "newest question", captured.Messages[3].Content)
}

func TestTranslate_SkipsUntranslatedHistory(t *testing.T) {
	var captured chatRequest
	srv := chatServer(t, `{"sql":"SELECT 1"}`, http.StatusOK, &captured)
	defer srv.Close()

	history := []domain.ConversationRecord{
		{Query: "never translated", SQLQuery: ""},
	}
	c := newTestClient(t, srv.URL)
	_, err := c.Translate(context.Background(), "question", history)
	require.NoError(t, err)
	require.Len(t, captured.Messages, 2) // system + current user only
}

func TestTranslate_EmptyQuestion(t *testing.T) {
	c := newTestClient(t, "http://unused")
	_, err := c.Translate(context.Background(), "   ", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestTranslate_UpstreamStatusError(t *testing.T) {
	srv := chatServer(t, "", http.StatusTooManyRequests, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Translate(context.Background(), "question", nil)
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestTranslate_ParamStoreError(t *testing.T) {
	c, err := NewClient(&mockParams{err: fmt.Errorf("ssm down")}, "/insights")
	require.NoError(t, err)
	_, err = c.Translate(context.Background(), "question", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm down")
}

func TestParseSQLAnswer_StripsFences(t *testing.T) {
	sql, err := parseSQLAnswer(`{"sql":"` + "```sql\\nSELECT 1\\n```" + `"}`)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", sql)
}

func TestParseSQLAnswer_RejectsEmpty(t *testing.T) {
	_, err := parseSQLAnswer(`{"sql":"  "}`)
	require.Error(t, err)
}

func TestParseSQLAnswer_RejectsUnknownFields(t *testing.T) {
	_, err := parseSQLAnswer(`{"sql":"SELECT 1","note":"extra"}`)
	require.Error(t, err)
}

func TestParseSQLAnswer_RejectsTrailingData(t *testing.T) {
	_, err := parseSQLAnswer(`{"sql":"SELECT 1"}{"sql":"SELECT 2"}`)
	require.Error(t, err)
}
