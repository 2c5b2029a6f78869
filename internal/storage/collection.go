package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection persists a whole slice under one key. Every write replaces
// the full JSON array.
type Collection[T any] struct {
	kv  KV
	key string
}

func NewCollection[T any](kv KV, key string) *Collection[T] {
	return &Collection[T]{kv: kv, key: key}
}

func (c *Collection[T]) Key() string {
	return c.key
}

// Load returns the stored items. found is false when the key was never
// written, which callers treat differently from an empty list.
func (c *Collection[T]) Load(ctx context.Context) (items []T, found bool, err error) {
	data, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", c.key, err)
	}
	if data == nil {
		return nil, false, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", c.key, err)
	}
	return items, true, nil
}

func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.kv.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("write %s: %w", c.key, err)
	}
	return nil
}
