package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"voznote/internal/domain"
)

// List is an ordered, most-recent-first collection mirrored to one blob key.
type List[T any] struct {
	blobs  BlobStore
	key    string
	id     func(T) string
	logger *slog.Logger

	mu    sync.RWMutex
	items []T
}

// LoadList reads key from blobs. Malformed data is logged and discarded; the
// list then starts empty and the next mutation overwrites it.
func LoadList[T any](ctx context.Context, blobs BlobStore, key string, id func(T) string, logger *slog.Logger) (*List[T], error) {
	l := &List[T]{
		blobs:  blobs,
		key:    key,
		id:     id,
		logger: logger,
	}

	data, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	if len(data) == 0 {
		return l, nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		perr := domain.NewError(domain.KindStorageParse, "", err)
		logger.Warn("discarding malformed saved data", "key", key, "kind", perr.Kind, "error", err)
		return l, nil
	}
	l.items = items
	return l, nil
}

func (l *List[T]) All() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *List[T]) Find(id string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, it := range l.items {
		if l.id(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Upsert replaces the item with the same identifier in place, or prepends it.
func (l *List[T]) Upsert(ctx context.Context, item T) error {
	return l.Mutate(ctx, func(items []T) []T {
		id := l.id(item)
		for i := range items {
			if l.id(items[i]) == id {
				items[i] = item
				return items
			}
		}
		return append([]T{item}, items...)
	})
}

// Delete removes the item with the given identifier.
func (l *List[T]) Delete(ctx context.Context, id string) error {
	if _, ok := l.Find(id); !ok {
		return fmt.Errorf("%s %s: %w", l.key, id, domain.ErrNotFound)
	}
	return l.Mutate(ctx, func(items []T) []T {
		out := items[:0]
		for _, it := range items {
			if l.id(it) != id {
				out = append(out, it)
			}
		}
		return out
	})
}

// Mutate applies fn to the items and persists the result.
func (l *List[T]) Mutate(ctx context.Context, fn func(items []T) []T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = fn(l.items)
	return l.persistLocked(ctx)
}

func (l *List[T]) persistLocked(ctx context.Context) error {
	items := l.items
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", l.key, err)
	}
	if err := l.blobs.Put(ctx, l.key, data); err != nil {
		return fmt.Errorf("saving %s: %w", l.key, err)
	}
	return nil
}
