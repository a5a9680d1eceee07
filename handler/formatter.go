package handler

import (
	"context"
	"encoding/json"
	"errors"

	"insights-agent/internal/domain"
)

// ResultFormatter settles one completed execution's result.
type ResultFormatter interface {
	Format(ctx context.Context, req domain.FormatRequest) error
}

// Formatter is the direct-invoke entry for the result-formatter function.
type Formatter struct {
	formatter ResultFormatter
}

func NewFormatter(formatter ResultFormatter) (*Formatter, error) {
	if formatter == nil {
		return nil, errors.New("handler: result formatter must not be nil")
	}
	return &Formatter{formatter: formatter}, nil
}

// Handle decodes the invocation payload and runs formatting. Returning the
// error marks the async invocation failed so Lambda's retry policy applies.
func (f *Formatter) Handle(ctx context.Context, raw json.RawMessage) error {
	var req domain.FormatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errors.New("handler: malformed format request payload")
	}
	return f.formatter.Format(ctx, req)
}
