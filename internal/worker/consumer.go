package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"ragstore/features/document"
	"ragstore/internal/middleware"
)

// Consumer adapts NSQ messages on the document.process topic to the
// processor. Each message carries one document id; NSQ's handler
// concurrency bounds how many documents process in parallel.
type Consumer struct {
	processor *Processor
}

func NewConsumer(processor *Processor) *Consumer {
	return &Consumer{processor: processor}
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload document.ProcessPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON will never parse, don't retry.
		slog.Error("dropping invalid processing message", "error", err)
		return nil
	}
	if payload.DocumentID == "" {
		slog.Error("dropping processing message without document id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	return c.processor.Process(ctx, payload.DocumentID)
}

// Start attaches the consumer to nsqlookupd with the given handler
// concurrency and returns the underlying NSQ consumer for shutdown.
func (c *Consumer) Start(lookupdAddr, channel string, concurrency int) (*nsq.Consumer, error) {
	cfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(document.TopicProcess, channel, cfg)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(c.HandleMessage), concurrency)
	if err := consumer.ConnectToNSQLookupd(lookupdAddr); err != nil {
		return nil, err
	}
	return consumer, nil
}
