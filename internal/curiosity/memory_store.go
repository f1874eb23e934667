package curiosity

import (
	"context"

	"github.com/dwizi/governor/internal/store"
)

// StoreWriter adapts the sqlite store to the MemoryWriter contract.
type StoreWriter struct {
	store *store.Store
}

func NewStoreWriter(s *store.Store) *StoreWriter {
	return &StoreWriter{store: s}
}

func (w *StoreWriter) Store(ctx context.Context, item MemoryItem) (string, error) {
	return w.store.CreateMemory(ctx, store.CreateMemoryInput{
		Text:           item.Text,
		Type:           "finding",
		Source:         item.Source,
		Tags:           item.Tags,
		Citation:       item.Citation,
		URL:            item.URL,
		RelevanceScore: item.RelevanceScore,
	})
}

func (w *StoreWriter) Recent(ctx context.Context, limit int) ([]string, error) {
	memories, err := w.store.RecentMemories(ctx, limit)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(memories))
	for _, memory := range memories {
		texts = append(texts, memory.Text)
	}
	return texts, nil
}
