package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"banking-ledger/config"
	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TransferPublisher emits terminal transfer events. Events are keyed by the
// source account so one account's events stay ordered within a partition.
type TransferPublisher struct {
	writer Writer
	topic  string
	log    zerolog.Logger
}

// NewTransferPublisher builds a publisher writing to cfg.Topic on cfg.Brokers.
func NewTransferPublisher(cfg config.KafkaConfig, log zerolog.Logger) (*TransferPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is not configured")
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		Async:                  cfg.Async,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				log.Error().Err(err).Str("topic", cfg.Topic).Int("count", len(messages)).Msg("async event write failed")
			}
		},
	}
	return newTransferPublisher(w, cfg.Topic, log), nil
}

func newTransferPublisher(w Writer, topic string, log zerolog.Logger) *TransferPublisher {
	return &TransferPublisher{writer: w, topic: topic, log: log}
}

var _ ports.EventPublisher = (*TransferPublisher)(nil)

// PublishTransfer writes one event.
func (p *TransferPublisher) PublishTransfer(ctx context.Context, event domain.TransferEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transfer event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.FromAccountID.String()),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.topic, err)
	}

	p.log.Debug().
		Str("topic", p.topic).
		Str("event", event.Type).
		Str("tx_id", event.TransactionID.String()).
		Msg("transfer event published")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *TransferPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer for %s: %w", p.topic, err)
	}
	return nil
}
