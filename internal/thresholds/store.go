package thresholds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartalerts/internal/metrics"
	"smartalerts/internal/model"
	"smartalerts/internal/storage"
)

type Options struct {
	Logger zerolog.Logger
	// StrictBetween rejects between thresholds that have no maxValue
	// instead of only warning about them.
	StrictBetween bool
	Now           func() time.Time
	NewID         func() string
}

// Store keeps threshold definitions under storage.KeyThresholds. Reads go
// to durable storage first; the in-memory copy is only used when storage
// fails.
type Store struct {
	mu            sync.Mutex
	coll          *storage.Collection[model.Threshold]
	cache         []model.Threshold
	logger        zerolog.Logger
	strictBetween bool
	now           func() time.Time
	newID         func() string
}

func NewStore(kv storage.KV, opts Options) *Store {
	s := &Store{
		coll:          storage.NewCollection[model.Threshold](kv, storage.KeyThresholds),
		logger:        opts.Logger,
		strictBetween: opts.StrictBetween,
		now:           opts.Now,
		newID:         opts.NewID,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	return s
}

func (s *Store) Add(ctx context.Context, spec model.ThresholdSpec) (model.Threshold, error) {
	warnings, err := Validate(spec, s.strictBetween)
	if err != nil {
		return model.Threshold{}, err
	}
	th := model.Threshold{
		ID:        s.newID(),
		Name:      spec.Name,
		Field:     spec.Field,
		Operator:  spec.Operator,
		Value:     spec.Value,
		MaxValue:  spec.MaxValue,
		Severity:  spec.Severity,
		Enabled:   spec.Enabled,
		CreatedAt: s.now(),
	}
	for _, w := range warnings {
		s.logger.Warn().Str("threshold_id", th.ID).Str("name", th.Name).Msg(w)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := append(s.load(ctx), th)
	s.save(ctx, items)
	return th, nil
}

func (s *Store) List(ctx context.Context) []model.Threshold {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.load(ctx))
}

// Enabled returns the enabled thresholds in store order.
func (s *Store) Enabled(ctx context.Context) []model.Threshold {
	all := s.List(ctx)
	out := all[:0]
	for _, th := range all {
		if th.Enabled {
			out = append(out, th)
		}
	}
	return out
}

func (s *Store) Get(ctx context.Context, id string) (model.Threshold, bool) {
	for _, th := range s.List(ctx) {
		if th.ID == id {
			return th, true
		}
	}
	return model.Threshold{}, false
}

func (s *Store) Update(ctx context.Context, id string, patch model.ThresholdPatch) (model.Threshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load(ctx)
	idx := -1
	for i := range items {
		if items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Threshold{}, fmt.Errorf("threshold %q: %w", id, model.ErrNotFound)
	}
	updated := applyPatch(items[idx], patch)
	warnings, err := Validate(specOf(updated), s.strictBetween)
	if err != nil {
		return model.Threshold{}, err
	}
	for _, w := range warnings {
		s.logger.Warn().Str("threshold_id", id).Str("name", updated.Name).Msg(w)
	}
	items = clone(items)
	items[idx] = updated
	s.save(ctx, items)
	return updated, nil
}

// Delete removes the threshold if present. Missing ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load(ctx)
	out := make([]model.Threshold, 0, len(items))
	for _, th := range items {
		if th.ID != id {
			out = append(out, th)
		}
	}
	if len(out) == len(items) {
		return nil
	}
	s.save(ctx, out)
	return nil
}

func (s *Store) load(ctx context.Context) []model.Threshold {
	items, _, err := s.coll.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.coll.Key()).Msg("failed to read thresholds, using in-memory copy")
		metrics.PersistenceFailures.WithLabelValues(s.coll.Key(), "read").Inc()
		return clone(s.cache)
	}
	s.cache = items
	return clone(items)
}

func (s *Store) save(ctx context.Context, items []model.Threshold) {
	s.cache = clone(items)
	if err := s.coll.Save(ctx, items); err != nil {
		s.logger.Error().Err(err).Str("key", s.coll.Key()).Msg("failed to persist thresholds")
		metrics.PersistenceFailures.WithLabelValues(s.coll.Key(), "write").Inc()
	}
}

func applyPatch(th model.Threshold, p model.ThresholdPatch) model.Threshold {
	if p.Name != nil {
		th.Name = *p.Name
	}
	if p.Field != nil {
		th.Field = *p.Field
	}
	if p.Operator != nil {
		th.Operator = *p.Operator
	}
	if p.Value != nil {
		th.Value = *p.Value
	}
	if p.MaxValue != nil {
		th.MaxValue = *p.MaxValue
	}
	if p.Severity != nil {
		th.Severity = *p.Severity
	}
	if p.Enabled != nil {
		th.Enabled = *p.Enabled
	}
	return th
}

func specOf(th model.Threshold) model.ThresholdSpec {
	return model.ThresholdSpec{
		Name:     th.Name,
		Field:    th.Field,
		Operator: th.Operator,
		Value:    th.Value,
		MaxValue: th.MaxValue,
		Severity: th.Severity,
		Enabled:  th.Enabled,
	}
}

func clone(items []model.Threshold) []model.Threshold {
	if items == nil {
		return []model.Threshold{}
	}
	out := make([]model.Threshold, len(items))
	copy(out, items)
	return out
}
