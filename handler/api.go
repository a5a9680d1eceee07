package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"insights-agent/internal/usecase"
)

// Submitter accepts a new question for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error)
}

// Reader serves conversation history pages and poll responses.
type Reader interface {
	GetHistory(ctx context.Context, userID string) (usecase.HistoryOutput, error)
	PollResult(ctx context.Context, userID, conversationID string) (usecase.PollOutput, error)
}

// API routes API Gateway proxy events for the query-processor function:
// POST /query, GET /history, GET /result/{conversationId}.
type API struct {
	submitter Submitter
	reader    Reader
}

func NewAPI(submitter Submitter, reader Reader) (*API, error) {
	if submitter == nil {
		return nil, errors.New("handler: submitter must not be nil")
	}
	if reader == nil {
		return nil, errors.New("handler: reader must not be nil")
	}
	return &API{submitter: submitter, reader: reader}, nil
}

type submitRequest struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
}

type submitResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type historyResponse struct {
	Conversations []conversationJSON `json:"conversations"`
	Count         int                `json:"count"`
}

type conversationJSON struct {
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
	SQLQuery       string `json:"sqlQuery,omitempty"`
	Timestamp      string `json:"timestamp"`
	ResultStatus   string `json:"resultStatus,omitempty"`
	ResultCount    int    `json:"resultCount,omitempty"`
}

type pollResponse struct {
	Status      string              `json:"status"`
	Columns     []string            `json:"columns,omitempty"`
	Rows        []map[string]string `json:"rows,omitempty"`
	ResultCount int                 `json:"resultCount,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (a *API) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch {
	case req.HTTPMethod == http.MethodPost && strings.HasSuffix(req.Path, "/query"):
		return a.handleSubmit(ctx, req), nil
	case req.HTTPMethod == http.MethodGet && strings.HasSuffix(req.Path, "/history"):
		return a.handleHistory(ctx, req), nil
	case req.HTTPMethod == http.MethodGet && strings.Contains(req.Path, "/result/"):
		return a.handlePoll(ctx, req), nil
	default:
		return jsonResponse(http.StatusNotFound, errorResponse{Message: "unknown route"}), nil
	}
}

func (a *API) handleSubmit(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body submitRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Message: "malformed request body"})
	}
	userID := body.UserID
	if userID == "" {
		userID = callerID(req)
	}

	out, err := a.submitter.Submit(ctx, usecase.SubmitInput{UserID: userID, Query: body.Query})
	if err != nil {
		return errorToResponse(err, "error processing query")
	}
	return jsonResponse(http.StatusOK, submitResponse{
		Message:        "Query submitted successfully",
		ConversationID: out.ConversationID,
	})
}

func (a *API) handleHistory(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	out, err := a.reader.GetHistory(ctx, callerID(req))
	if err != nil {
		return errorToResponse(err, "error fetching history")
	}

	convs := make([]conversationJSON, 0, len(out.Conversations))
	for _, rec := range out.Conversations {
		convs = append(convs, conversationJSON{
			ConversationID: rec.ConversationID,
			Query:          rec.Query,
			SQLQuery:       rec.SQLQuery,
			Timestamp:      rec.Timestamp,
			ResultStatus:   rec.ResultStatus,
			ResultCount:    rec.ResultCount,
		})
	}
	return jsonResponse(http.StatusOK, historyResponse{Conversations: convs, Count: out.Count})
}

func (a *API) handlePoll(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	conversationID := req.PathParameters["conversationId"]
	if conversationID == "" {
		if i := strings.LastIndex(req.Path, "/result/"); i >= 0 {
			conversationID = req.Path[i+len("/result/"):]
		}
	}

	out, err := a.reader.PollResult(ctx, callerID(req), conversationID)
	if err != nil {
		return errorToResponse(err, "error fetching result")
	}
	return jsonResponse(http.StatusOK, pollResponse{
		Status:      out.Status,
		Columns:     out.Columns,
		Rows:        out.Rows,
		ResultCount: out.ResultCount,
		Error:       out.Error,
	})
}

// callerID resolves the requesting user. The API Gateway authorizer owns
// identity; its claims take precedence over the fallback header used by
// local and test setups.
func callerID(req events.APIGatewayProxyRequest) string {
	if claims, ok := req.RequestContext.Authorizer["claims"].(map[string]interface{}); ok {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub
		}
		if username, ok := claims["cognito:username"].(string); ok && username != "" {
			return username
		}
	}
	if v := req.Headers["x-user-id"]; v != "" {
		return v
	}
	return req.Headers["X-User-Id"]
}

func errorToResponse(err error, fallback string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		return jsonResponse(statusForCode(ucErr.Code), errorResponse{
			Message: fallback,
			Code:    string(ucErr.Code),
		})
	}
	return jsonResponse(http.StatusInternalServerError, errorResponse{Message: fallback})
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorTranslationFailed, usecase.ErrorDispatchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    responseHeaders(),
			Body:       `{"message":"encoding error"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders(),
		Body:       string(body),
	}
}

func responseHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
}
