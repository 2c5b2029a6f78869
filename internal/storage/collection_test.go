package storage

import (
	"context"
	"testing"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	coll := NewCollection[item](kv, "items")

	items, found, err := coll.Load(ctx)
	if err != nil || found || items != nil {
		t.Fatalf("expected empty unwritten collection, got %v found=%v err=%v", items, found, err)
	}

	if err := coll.Save(ctx, []item{{ID: "a", Count: 1}, {ID: "b", Count: 2}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	items, found, err = coll.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(items) != 2 || items[1].ID != "b" || items[1].Count != 2 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestCollectionSaveNilWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	coll := NewCollection[item](kv, "items")
	if err := coll.Save(ctx, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := kv.Get(ctx, "items")
	if string(raw) != "[]" {
		t.Fatalf("expected [], got %q", raw)
	}
}

func TestCollectionDecodeError(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	_ = kv.Set(ctx, "items", []byte("{not json"))
	coll := NewCollection[item](kv, "items")
	if _, _, err := coll.Load(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}
