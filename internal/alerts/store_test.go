package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smartalerts/internal/model"
	"smartalerts/internal/storage"
)

type brokenKV struct {
	storage.KV
	broken bool
}

func (b *brokenKV) Get(ctx context.Context, key string) ([]byte, error) {
	if b.broken {
		return nil, errors.New("storage unavailable")
	}
	return b.KV.Get(ctx, key)
}

func (b *brokenKV) Set(ctx context.Context, key string, value []byte) error {
	if b.broken {
		return errors.New("storage unavailable")
	}
	return b.KV.Set(ctx, key, value)
}

func newAlert(i int) model.Alert {
	return model.Alert{
		ID:          fmt.Sprintf("alert-%d", i),
		ThresholdID: "th-1",
		Title:       "High Price",
		Message:     fmt.Sprintf("price = %d", i),
		Severity:    model.SeverityHigh,
		Timestamp:   time.Unix(int64(i), 0).UTC(),
		Data:        model.Record{"price": float64(i)},
	}
}

func TestAddInsertsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), 0, zerolog.Nop())
	s.Add(ctx, newAlert(1))
	s.Add(ctx, newAlert(2))
	s.Add(ctx, newAlert(3))

	list := s.List(ctx, false)
	if len(list) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(list))
	}
	for i, want := range []string{"alert-3", "alert-2", "alert-1"} {
		if list[i].ID != want {
			t.Fatalf("position %d: got %s, want %s", i, list[i].ID, want)
		}
	}
	if list[0].Read {
		t.Fatalf("new alerts must be unread")
	}
	if list[0].Data["price"] != 3.0 {
		t.Fatalf("data payload not persisted: %v", list[0].Data)
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), DefaultLimit, zerolog.Nop())
	for i := 1; i <= 130; i++ {
		s.Add(ctx, newAlert(i))
	}
	list := s.List(ctx, false)
	if len(list) != 100 {
		t.Fatalf("expected 100 alerts, got %d", len(list))
	}
	if list[0].ID != "alert-130" {
		t.Fatalf("newest should be first, got %s", list[0].ID)
	}
	if list[99].ID != "alert-31" {
		t.Fatalf("oldest retained should be alert-31, got %s", list[99].ID)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), 10, zerolog.Nop())
	s.Add(ctx, newAlert(1))
	s.Add(ctx, newAlert(2))

	s.MarkRead(ctx, "alert-1")
	s.MarkRead(ctx, "alert-1")
	s.MarkRead(ctx, "missing")

	unread := s.List(ctx, true)
	if len(unread) != 1 || unread[0].ID != "alert-2" {
		t.Fatalf("unexpected unread list: %+v", unread)
	}
	for _, a := range s.List(ctx, false) {
		if a.ID == "alert-1" && !a.Read {
			t.Fatalf("alert-1 should be read")
		}
	}
	if s.UnreadCount(ctx) != 1 {
		t.Fatalf("unread count: %d", s.UnreadCount(ctx))
	}
}

func TestMarkAllRead(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), 10, zerolog.Nop())
	for i := 0; i < 5; i++ {
		s.Add(ctx, newAlert(i))
	}
	s.MarkAllRead(ctx)
	if got := s.List(ctx, true); len(got) != 0 {
		t.Fatalf("expected no unread alerts, got %d", len(got))
	}
	if got := s.List(ctx, false); len(got) != 5 {
		t.Fatalf("mark all read must not remove alerts, got %d", len(got))
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), 10, zerolog.Nop())
	for i := 0; i < 3; i++ {
		s.Add(ctx, newAlert(i))
	}
	s.Delete(ctx, "alert-1")
	s.Delete(ctx, "alert-1")
	s.Delete(ctx, "nope")
	if got := s.List(ctx, false); len(got) != 2 {
		t.Fatalf("expected 2 alerts after delete, got %d", len(got))
	}
	s.Clear(ctx)
	if got := s.List(ctx, false); len(got) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(got))
	}
	s.Clear(ctx)
	if got := s.List(ctx, false); len(got) != 0 {
		t.Fatalf("clear on empty store, got %d", len(got))
	}
}

func TestStateSharedThroughStorage(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	a := NewStore(kv, 10, zerolog.Nop())
	b := NewStore(kv, 10, zerolog.Nop())
	a.Add(ctx, newAlert(1))
	b.MarkRead(ctx, "alert-1")
	list := a.List(ctx, false)
	if len(list) != 1 || !list[0].Read {
		t.Fatalf("stores sharing a scope should see each other's writes: %+v", list)
	}
}

func TestStorageFailureUsesMemory(t *testing.T) {
	ctx := context.Background()
	kv := &brokenKV{KV: storage.NewMemory()}
	s := NewStore(kv, 10, zerolog.Nop())
	s.Add(ctx, newAlert(1))
	kv.broken = true
	s.Add(ctx, newAlert(2))
	list := s.List(ctx, false)
	if len(list) != 2 || list[0].ID != "alert-2" {
		t.Fatalf("expected in-memory state to survive storage failure: %+v", list)
	}
}

func TestAddStoresNonFiniteValuesAsNull(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := NewStore(kv, 10, zerolog.Nop())

	record := model.Record{
		"price":  math.Inf(1),
		"ratio":  math.NaN(),
		"nested": map[string]any{"low": math.Inf(-1), "ok": 1.5},
		"series": []any{1.0, math.NaN()},
		"name":   "BTC",
	}
	alert := newAlert(1)
	alert.Data = record
	s.Add(ctx, alert)

	got := NewStore(kv, 10, zerolog.Nop()).List(ctx, false)
	if len(got) != 1 {
		t.Fatalf("expected persisted alert, got %d", len(got))
	}
	data := got[0].Data
	if v, ok := data["price"]; !ok || v != nil {
		t.Fatalf("price = %#v, want null", v)
	}
	if v, ok := data["ratio"]; !ok || v != nil {
		t.Fatalf("ratio = %#v, want null", v)
	}
	nested := data["nested"].(map[string]any)
	if nested["low"] != nil || nested["ok"] != 1.5 {
		t.Fatalf("unexpected nested %#v", nested)
	}
	if series := data["series"].([]any); series[0] != 1.0 || series[1] != nil {
		t.Fatalf("unexpected series %#v", series)
	}
	if data["name"] != "BTC" {
		t.Fatalf("unexpected name %#v", data["name"])
	}
	if !math.IsInf(record["price"].(float64), 1) {
		t.Fatal("caller's record was modified")
	}
}
