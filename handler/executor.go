package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"insights-agent/internal/domain"
	"insights-agent/internal/integrations/sqsqueue"
)

// MessageProcessor runs one dispatch message to a terminal outcome.
type MessageProcessor interface {
	HandleMessage(ctx context.Context, msg domain.DispatchMessage) error
}

// Executor is the SQS-triggered entry for the sql-executor function. It
// reports per-record failures back to SQS through batch item failures so
// only the failed messages are redelivered.
type Executor struct {
	processor MessageProcessor
}

func NewExecutor(processor MessageProcessor) (*Executor, error) {
	if processor == nil {
		return nil, errors.New("handler: message processor must not be nil")
	}
	return &Executor{processor: processor}, nil
}

func (e *Executor) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure
	for _, record := range event.Records {
		msg, err := sqsqueue.DecodeMessage(record.Body)
		if err != nil {
			// Undecodable bodies never become processable; dropping them is
			// the only way off the queue.
			slog.Error("dropping undecodable dispatch message", "messageId", record.MessageId, "err", err)
			continue
		}
		if err := e.processor.HandleMessage(ctx, msg); err != nil {
			slog.Error("dispatch message processing failed",
				"messageId", record.MessageId, "conversationId", msg.ConversationID, "err", err)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}
