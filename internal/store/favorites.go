package store

import (
	"context"
	"log/slog"

	"voznote/internal/domain"
)

// FavoriteStore holds independent snapshots of quotes, identified by their text.
type FavoriteStore struct {
	list *List[domain.Quote]
}

func LoadFavorites(ctx context.Context, blobs BlobStore, logger *slog.Logger) (*FavoriteStore, error) {
	list, err := LoadList(ctx, blobs, KeyFavorites, func(q domain.Quote) string { return q.Text }, logger)
	if err != nil {
		return nil, err
	}
	return &FavoriteStore{list: list}, nil
}

func (s *FavoriteStore) List() []domain.Quote {
	return s.list.All()
}

func (s *FavoriteStore) Contains(text string) bool {
	_, ok := s.list.Find(text)
	return ok
}

// Toggle removes every favorite with q's text, or prepends q when none exists.
// It reports whether q is a favorite afterwards.
func (s *FavoriteStore) Toggle(ctx context.Context, q domain.Quote) (bool, error) {
	var added bool
	err := s.list.Mutate(ctx, func(items []domain.Quote) []domain.Quote {
		out := make([]domain.Quote, 0, len(items)+1)
		for _, it := range items {
			if it.Text != q.Text {
				out = append(out, it)
			}
		}
		if len(out) == len(items) {
			added = true
			return append([]domain.Quote{q}, items...)
		}
		return out
	})
	return added, err
}

// ReplaceImage updates the image of every favorite whose text equals text.
func (s *FavoriteStore) ReplaceImage(ctx context.Context, text, imageURL string) error {
	if !s.Contains(text) {
		return nil
	}
	return s.list.Mutate(ctx, func(items []domain.Quote) []domain.Quote {
		for i := range items {
			if items[i].Text == text {
				items[i].ImageURL = imageURL
			}
		}
		return items
	})
}
