package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"insights-agent/internal/domain"
)

type mockFormatterSvc struct {
	err     error
	handled []domain.FormatRequest
}

func (m *mockFormatterSvc) Format(_ context.Context, req domain.FormatRequest) error {
	m.handled = append(m.handled, req)
	return m.err
}

func TestFormatterHandle_HappyPath(t *testing.T) {
	svc := &mockFormatterSvc{}
	f, err := NewFormatter(svc)
	require.NoError(t, err)

	payload := `{"userId":"u1","conversationId":"100-a","resultLocation":"s3://b/k"}`
	require.NoError(t, f.Handle(context.Background(), json.RawMessage(payload)))
	require.Len(t, svc.handled, 1)
	require.Equal(t, "u1", svc.handled[0].UserID)
	require.Equal(t, "s3://b/k", svc.handled[0].ResultLocation)
}

func TestFormatterHandle_MalformedPayload(t *testing.T) {
	f, err := NewFormatter(&mockFormatterSvc{})
	require.NoError(t, err)
	require.Error(t, f.Handle(context.Background(), json.RawMessage("not json")))
}

func TestFormatterHandle_ServiceErrorPropagates(t *testing.T) {
	svc := &mockFormatterSvc{err: errors.New("blob missing")}
	f, err := NewFormatter(svc)
	require.NoError(t, err)
	require.ErrorContains(t, f.Handle(context.Background(), json.RawMessage(`{"userId":"u1","conversationId":"100-a"}`)), "blob missing")
}

func TestNewFormatter_NilService(t *testing.T) {
	_, err := NewFormatter(nil)
	require.Error(t, err)
}
