package store

import (
	"context"
	"log/slog"

	"voznote/internal/domain"
)

// NoteStore persists notes. Audio references stay in memory only.
type NoteStore struct {
	list *List[domain.Note]
}

func LoadNotes(ctx context.Context, blobs BlobStore, logger *slog.Logger) (*NoteStore, error) {
	list, err := LoadList(ctx, blobs, KeyNotes, func(n domain.Note) string { return n.ID }, logger)
	if err != nil {
		return nil, err
	}
	return &NoteStore{list: list}, nil
}

func (s *NoteStore) List() []domain.Note {
	return s.list.All()
}

func (s *NoteStore) Get(id string) (domain.Note, bool) {
	return s.list.Find(id)
}

func (s *NoteStore) Upsert(ctx context.Context, note domain.Note) error {
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return s.list.Upsert(ctx, note)
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	return s.list.Delete(ctx, id)
}
