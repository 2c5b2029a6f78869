package ingest

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"smartalerts/internal/config"
	"smartalerts/internal/metrics"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer evaluates every message on a topic. A message holds one
// record object or an array of them.
type KafkaConsumer struct {
	reader  MessageReader
	checker Checker
	logger  zerolog.Logger
}

func NewKafkaConsumer(reader MessageReader, checker Checker, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, checker: checker, logger: logger}
}

// StartKafka starts a consumer in the background when enabled. The
// returned channel closes once the consumer has exited.
func StartKafka(ctx context.Context, cfg config.KafkaReaderConfig, checker Checker, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.Enabled {
		logger.Info().Msg("kafka ingest disabled")
		close(done)
		return done
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Str("group_id", cfg.GroupID).Msg("kafka ingest enabled")
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	c := NewKafkaConsumer(reader, checker, logger)
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	return done
}

// Run reads until ctx ends, then closes the reader.
func (c *KafkaConsumer) Run(ctx context.Context) {
	defer c.reader.Close()
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Warn().Err(err).Msg("kafka read error")
			if !BackoffSleep(ctx, 0) {
				return
			}
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Int64("offset", m.Offset).
				Msg("kafka message handler panic recovered")
			metrics.PanicsRecovered.WithLabelValues("ingest").Inc()
		}
	}()
	evaluate(ctx, c.checker, "kafka", m.Value, c.logger)
}
