package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"insights-agent/internal/domain"
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaConfig `json:"json_schema"`
}

type jsonSchemaConfig struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

// sqlPayload is the structured answer the model is constrained to return.
type sqlPayload struct {
	SQL string `json:"sql"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("translator: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client converts natural-language questions into SQL through an
// OpenAI-compatible chat completions endpoint. The API token, the dataset
// schema description, and the model name are resolved from the parameter
// store under paramPrefix on first use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	cfgOnce sync.Once
	apiKey  string
	schema  string
	model   string
	cfgErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client backed by the given paramstore.Getter.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("translator: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("translator: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://api.openai.com/v1",
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveConfig fetches the token, schema, and model from SSM on the first
// call and returns the cached result on every subsequent call within the
// same process lifetime.
func (c *Client) resolveConfig(ctx context.Context) error {
	c.cfgOnce.Do(func() {
		c.apiKey, c.cfgErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.paramPrefix+"/translator-token")
		if c.cfgErr != nil {
			return
		}
		c.schema, c.cfgErr = c.getter.GetParameter(ctx, c.paramPrefix+"/dataset_schema")
		if c.cfgErr != nil {
			c.cfgErr = fmt.Errorf("translator: load dataset schema: %w", c.cfgErr)
			return
		}
		c.model, c.cfgErr = c.getter.GetParameter(ctx, c.paramPrefix+"/config/model")
		if c.cfgErr != nil {
			c.cfgErr = fmt.Errorf("translator: load model name: %w", c.cfgErr)
		}
	})
	return c.cfgErr
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 15s timeout if none was set (e.g. in tests that nil out the field).
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Translate sends the question plus recent history to the model and returns
// the generated SQL string. History is expected most-recent-first and is
// rendered oldest-first into the prompt.
func (c *Client) Translate(ctx context.Context, question string, history []domain.ConversationRecord) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("translator: question must not be empty")
	}
	if err := c.resolveConfig(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       buildPromptMessages(c.schema, question, history),
		Temperature:    floatPtr(0.1),
		ResponseFormat: sqlResponseFormat(),
	})
	if err != nil {
		return "", fmt.Errorf("translator: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("translator: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("translator: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("translator: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("translator: no choices in response")
	}

	sql, err := parseSQLAnswer(payload.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	return sql, nil
}

func sqlResponseFormat() *responseFormat {
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: jsonSchemaConfig{
			Name:   "sql_translation",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{
					"sql":{"type":"string"}
				},
				"required":["sql"]
			}`),
		},
	}
}

// parseSQLAnswer decodes the model's structured answer and rejects empty or
// fenced output.
func parseSQLAnswer(raw string) (string, error) {
	var out sqlPayload
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return "", fmt.Errorf("translator: decode sql answer: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return "", errors.New("translator: decode sql answer: multiple JSON values")
		}
		return "", fmt.Errorf("translator: decode sql answer trailing data: %w", err)
	}
	sql := strings.TrimSpace(out.SQL)
	sql = strings.TrimPrefix(sql, "```sql")
	sql = strings.TrimPrefix(sql, "```")
	sql = strings.TrimSuffix(sql, "```")
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", errors.New("translator: empty sql in answer")
	}
	return sql, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("translator: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("translator: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("translator: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("translator: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("translator: API token is empty")
	}
	return tp.Token, nil
}

func floatPtr(f float64) *float64 { return &f }
