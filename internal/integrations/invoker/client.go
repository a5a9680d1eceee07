package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"insights-agent/internal/domain"
)

// lambdaAPI is the minimal Lambda interface required by Client.
// *lambda.Client from aws-sdk-go-v2 satisfies this interface.
type lambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Client asynchronously invokes the result formatter function after a
// successful execution.
type Client struct {
	api          lambdaAPI
	functionName string
}

// New creates a Client targeting the given function name or ARN.
func New(api lambdaAPI, functionName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("invoker: api must not be nil")
	}
	if strings.TrimSpace(functionName) == "" {
		return nil, errors.New("invoker: function name must not be empty")
	}
	return &Client{api: api, functionName: functionName}, nil
}

// InvokeFormatter fires an event-type invocation carrying the blob location
// to format. The call returns once the invocation is accepted, not when
// formatting finishes.
func (c *Client) InvokeFormatter(ctx context.Context, req domain.FormatRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("invoker: marshal payload: %w", err)
	}

	out, err := c.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoker: invoke %s: %w", c.functionName, err)
	}
	if out != nil && out.FunctionError != nil {
		return fmt.Errorf("invoker: invoke %s: function error %s", c.functionName, *out.FunctionError)
	}
	return nil
}
