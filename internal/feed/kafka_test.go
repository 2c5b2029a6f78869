package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"smartalerts/internal/config"
	"smartalerts/internal/model"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	msgs     []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker not available")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleAlert() model.Alert {
	return model.Alert{
		ID:          "alert-1",
		ThresholdID: "th-1",
		Title:       "High Price",
		Message:     "High Price: price = 150 (severity: High)",
		Severity:    model.SeverityHigh,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		Data:        model.Record{"price": float64(150)},
	}
}

func TestDeliverPublishesAlert(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, 2, time.Millisecond, zerolog.Nop())
	if err := p.Deliver(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "th-1" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var got model.Alert
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "alert-1" || got.Severity != model.SeverityHigh {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestDeliverRetries(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := NewPublisherWithWriter(w, 2, time.Millisecond, zerolog.Nop())
	if err := p.Deliver(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if w.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", w.calls)
	}
}

func TestDeliverGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := NewPublisherWithWriter(w, 1, time.Millisecond, zerolog.Nop())
	if err := p.Deliver(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected error after retries")
	}
	if w.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", w.calls)
	}
}

func TestClosedPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, 0, time.Millisecond, zerolog.Nop())
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !w.closed {
		t.Fatal("writer not closed")
	}
	if err := p.Deliver(context.Background(), sampleAlert()); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
}

func TestNewPublisherValidates(t *testing.T) {
	if _, err := NewPublisher(config.KafkaWriterConfig{Topic: "alerts"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewPublisher(config.KafkaWriterConfig{Brokers: []string{"localhost:9092"}}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without topic")
	}
	p, err := NewPublisher(config.KafkaWriterConfig{Brokers: []string{"localhost:9092"}, Topic: "alerts"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	_ = p.Close()
}
