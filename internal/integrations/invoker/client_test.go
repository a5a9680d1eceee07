package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/require"

	"insights-agent/internal/domain"
)

type fakeLambda struct {
	out    *lambda.InvokeOutput
	err    error
	lastIn *lambda.InvokeInput
}

func (f *fakeLambda) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.lastIn = in
	if f.out == nil {
		return &lambda.InvokeOutput{}, f.err
	}
	return f.out, f.err
}

func testRequest() domain.FormatRequest {
	return domain.FormatRequest{
		UserID:         "u1",
		ConversationID: "100-a",
		ResultLocation: "s3://results-bucket/processed-results/u1/100-a/result.json",
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "fn")
	require.Error(t, err)
	_, err = New(&fakeLambda{}, "  ")
	require.Error(t, err)
}

func TestInvokeFormatter_HappyPath(t *testing.T) {
	api := &fakeLambda{}
	c, err := New(api, "result-formatter")
	require.NoError(t, err)

	require.NoError(t, c.InvokeFormatter(context.Background(), testRequest()))
	require.Equal(t, "result-formatter", *api.lastIn.FunctionName)
	require.Equal(t, types.InvocationTypeEvent, api.lastIn.InvocationType)

	var decoded domain.FormatRequest
	require.NoError(t, json.Unmarshal(api.lastIn.Payload, &decoded))
	require.Equal(t, testRequest(), decoded)
}

func TestInvokeFormatter_APIError(t *testing.T) {
	c, err := New(&fakeLambda{err: errors.New("boom")}, "fn")
	require.NoError(t, err)
	err = c.InvokeFormatter(context.Background(), testRequest())
	require.Error(t, err)
}

func TestInvokeFormatter_FunctionError(t *testing.T) {
	c, err := New(&fakeLambda{out: &lambda.InvokeOutput{FunctionError: aws.String("Unhandled")}}, "fn")
	require.NoError(t, err)
	err = c.InvokeFormatter(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unhandled")
}
