// Package feed publishes every created alert to a Kafka topic so other
// systems can consume the alert stream.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"smartalerts/internal/config"
	"smartalerts/internal/metrics"
	"smartalerts/internal/model"
)

var ErrPublisherClosed = errors.New("publisher is closed")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer     MessageWriter
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
	closed     atomic.Bool
}

func NewPublisher(cfg config.KafkaWriterConfig, logger zerolog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return NewPublisherWithWriter(w, cfg.MaxRetries, cfg.RetryBackoff, logger), nil
}

func NewPublisherWithWriter(w MessageWriter, maxRetries int, backoff time.Duration, logger zerolog.Logger) *Publisher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Publisher{
		writer:     w,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger.With().Str("component", "alert_feed").Logger(),
	}
}

// Deliver publishes alert keyed by its threshold, so alerts from one
// threshold stay ordered within a partition.
func (p *Publisher) Deliver(ctx context.Context, alert model.Alert) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	data, err := json.Marshal(alert)
	if err != nil {
		metrics.FeedPublishTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("encode alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(alert.ThresholdID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(alert.ID)},
			{Key: "severity", Value: []byte(alert.Severity)},
		},
		Time: alert.Timestamp,
	}
	if err := p.publishWithRetry(ctx, msg); err != nil {
		metrics.FeedPublishTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.FeedPublishTotal.WithLabelValues("success").Inc()
	return nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	backoff := p.backoff
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying alert publish")
			metrics.FeedPublishRetries.Inc()
			t := time.NewTimer(backoff)
			select {
			case <-t.C:
				backoff *= 2
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	p.logger.Error().Err(lastErr).Int("attempts", p.maxRetries+1).Msg("alert publish failed after all retries")
	return fmt.Errorf("failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
