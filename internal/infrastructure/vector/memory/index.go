package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// Index is a process-local cosine similarity index used when no Qdrant URL
// is configured. Entries are keyed by chunk id, so upserts overwrite.
type Index struct {
	mu      sync.RWMutex
	entries map[string]domain.Chunk
}

func New() *Index {
	return &Index{entries: make(map[string]domain.Chunk)}
}

func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("memory index: chunk without id")
		}
		stored := chunk
		stored.Vector = append([]float32(nil), chunk.Vector...)
		i.entries[chunk.ID] = stored
	}
	return nil
}

func (i *Index) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	out := make([]domain.RetrievedChunk, 0, len(i.entries))
	for _, chunk := range i.entries {
		if filter.DocumentID != "" && chunk.DocumentID != filter.DocumentID {
			continue
		}
		if len(chunk.Vector) != len(vector) {
			continue
		}
		out = append(out, domain.RetrievedChunk{
			ID:         chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			Score:      cosine(vector, chunk.Vector),
		})
	}
	i.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].Score == out[b].Score {
			return out[a].ID < out[b].ID
		}
		return out[a].Score > out[b].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for k := range a {
		dot += float64(a[k]) * float64(b[k])
		na += float64(a[k]) * float64(a[k])
		nb += float64(b[k]) * float64(b[k])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
