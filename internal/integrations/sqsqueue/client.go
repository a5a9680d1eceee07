package sqsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"insights-agent/internal/domain"
)

// sqsAPI is the minimal SQS interface required by Client.
// *sqs.Client from aws-sdk-go-v2 satisfies this interface.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Client sends dispatch messages to the execution queue. Delivery is
// at-least-once; consumers own duplicate handling.
type Client struct {
	api      sqsAPI
	queueURL string
}

// New creates a Client for the given queue URL.
func New(api sqsAPI, queueURL string) (*Client, error) {
	if api == nil {
		return nil, errors.New("sqsqueue: api must not be nil")
	}
	if strings.TrimSpace(queueURL) == "" {
		return nil, errors.New("sqsqueue: queue url must not be empty")
	}
	return &Client{api: api, queueURL: queueURL}, nil
}

// Send enqueues one DispatchMessage as a JSON body.
func (c *Client) Send(ctx context.Context, msg domain.DispatchMessage) error {
	if msg.UserID == "" || msg.ConversationID == "" {
		return errors.New("sqsqueue: message requires userId and conversationId")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sqsqueue: marshal message: %w", err)
	}

	_, err = c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqsqueue: send message: %w", err)
	}
	return nil
}

// DecodeMessage parses a queue message body back into a DispatchMessage.
// Used by the consumer side, where the body arrives through the Lambda
// event rather than a receive call.
func DecodeMessage(body string) (domain.DispatchMessage, error) {
	var msg domain.DispatchMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return domain.DispatchMessage{}, fmt.Errorf("sqsqueue: decode message: %w", err)
	}
	if msg.UserID == "" || msg.ConversationID == "" {
		return domain.DispatchMessage{}, errors.New("sqsqueue: decoded message missing userId or conversationId")
	}
	return msg, nil
}
