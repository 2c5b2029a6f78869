package alerts

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"smartalerts/internal/metrics"
	"smartalerts/internal/model"
	"smartalerts/internal/storage"
)

const DefaultLimit = 100

// Store holds generated alerts newest first under storage.KeyAlerts and
// keeps at most limit of them.
type Store struct {
	mu     sync.Mutex
	coll   *storage.Collection[model.Alert]
	buf    []model.Alert
	limit  int
	logger zerolog.Logger
}

func NewStore(kv storage.KV, limit int, logger zerolog.Logger) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		coll:   storage.NewCollection[model.Alert](kv, storage.KeyAlerts),
		limit:  limit,
		logger: logger,
	}
}

func (s *Store) Limit() int {
	return s.limit
}

// Add inserts alert at the head and evicts from the tail past the limit.
// NaN and infinite values in the alert's record are stored as null.
func (s *Store) Add(ctx context.Context, alert model.Alert) {
	if alert.Data != nil {
		alert.Data = storable(alert.Data).(model.Record)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.load(ctx)
	out := make([]model.Alert, 0, min(len(buf)+1, s.limit))
	out = append(out, alert)
	for _, a := range buf {
		if len(out) >= s.limit {
			break
		}
		out = append(out, a)
	}
	s.save(ctx, out)
}

func (s *Store) List(ctx context.Context, unreadOnly bool) []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.load(ctx)
	if !unreadOnly {
		return buf
	}
	out := make([]model.Alert, 0, len(buf))
	for _, a := range buf {
		if !a.Read {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) UnreadCount(ctx context.Context) int {
	return len(s.List(ctx, true))
}

// MarkRead is a no-op when id is unknown.
func (s *Store) MarkRead(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.load(ctx)
	for i := range buf {
		if buf[i].ID == id {
			buf[i].Read = true
			s.save(ctx, buf)
			return
		}
	}
}

func (s *Store) MarkAllRead(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.load(ctx)
	for i := range buf {
		buf[i].Read = true
	}
	s.save(ctx, buf)
}

// Delete is a no-op when id is unknown.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.load(ctx)
	out := make([]model.Alert, 0, len(buf))
	for _, a := range buf {
		if a.ID != id {
			out = append(out, a)
		}
	}
	if len(out) == len(buf) {
		return
	}
	s.save(ctx, out)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(ctx, nil)
}

func (s *Store) load(ctx context.Context) []model.Alert {
	items, _, err := s.coll.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.coll.Key()).Msg("failed to read alerts, using in-memory copy")
		metrics.PersistenceFailures.WithLabelValues(s.coll.Key(), "read").Inc()
		return clone(s.buf)
	}
	s.buf = items
	return clone(items)
}

func (s *Store) save(ctx context.Context, items []model.Alert) {
	s.buf = clone(items)
	if err := s.coll.Save(ctx, items); err != nil {
		s.logger.Error().Err(err).Str("key", s.coll.Key()).Msg("failed to persist alerts")
		metrics.PersistenceFailures.WithLabelValues(s.coll.Key(), "write").Inc()
	}
}

func clone(items []model.Alert) []model.Alert {
	if items == nil {
		return []model.Alert{}
	}
	out := make([]model.Alert, len(items))
	copy(out, items)
	return out
}

// storable copies v with NaN and infinities replaced by nil, since JSON
// cannot encode them.
func storable(v any) any {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
	case float32:
		if f := float64(n); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = storable(e)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = storable(e)
		}
		return out
	}
	return v
}
