package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"novelrag/types"
)

// MemoryStore is an in-process VectorStorer with brute-force cosine search.
// It backs tests and single-process runs; generations are immutable once
// published, so readers can keep searching a pinned generation while a new
// one is staged.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]*generation
	current     uuid.UUID
	previous    uuid.UUID
}

type generation struct {
	chunks    []types.Chunk
	hashes    map[string]string
	published bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		generations: make(map[uuid.UUID]*generation),
	}
}

func (s *MemoryStore) BeginGeneration(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := uuid.New()
	s.generations[gen] = &generation{}
	return gen, nil
}

func (s *MemoryStore) StageChunks(ctx context.Context, gen uuid.UUID, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[gen]
	if !ok {
		return fmt.Errorf("unknown generation %s", gen)
	}
	if g.published {
		return fmt.Errorf("generation %s is already published", gen)
	}
	g.chunks = append(g.chunks, chunks...)
	return nil
}

func (s *MemoryStore) PublishGeneration(ctx context.Context, gen uuid.UUID, hashes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[gen]
	if !ok {
		return fmt.Errorf("unknown generation %s", gen)
	}
	g.hashes = make(map[string]string, len(hashes))
	for k, v := range hashes {
		g.hashes[k] = v
	}
	g.published = true
	if s.current != gen {
		s.previous = s.current
	}
	s.current = gen
	return nil
}

func (s *MemoryStore) CurrentGeneration(ctx context.Context) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *MemoryStore) SourceHashes(ctx context.Context, gen uuid.UUID) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.generations[gen]
	if !ok {
		return nil, fmt.Errorf("unknown generation %s", gen)
	}
	hashes := make(map[string]string, len(g.hashes))
	for k, v := range g.hashes {
		hashes[k] = v
	}
	return hashes, nil
}

func (s *MemoryStore) Search(ctx context.Context, gen uuid.UUID, vec []float32, k int, book string) ([]types.RetrievalResult, error) {
	if gen == uuid.Nil {
		return nil, nil
	}

	s.mu.RLock()
	g, ok := s.generations[gen]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown generation %s", gen)
	}

	type scored struct {
		chunk types.Chunk
		score float64
	}
	var results []scored
	for _, chunk := range g.chunks {
		if book != "" && chunk.BookID != book {
			continue
		}
		results = append(results, scored{chunk: chunk, score: cosineSimilarity(vec, chunk.Embedding)})
	}

	// Stable sort keeps insertion order on equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > k {
		results = results[:k]
	}

	out := make([]types.RetrievalResult, len(results))
	for i, r := range results {
		out[i] = types.RetrievalResult{
			ChunkID:  r.chunk.ID,
			BookID:   r.chunk.BookID,
			Position: r.chunk.Position,
			Content:  r.chunk.Content,
			Score:    r.score,
		}
	}
	return out, nil
}

func (s *MemoryStore) PruneGenerations(ctx context.Context, keep uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The previously published generation survives one more cycle so
	// requests that pinned it before the swap can finish against it.
	for id := range s.generations {
		if id != keep && id != s.current && id != s.previous {
			delete(s.generations, id)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
