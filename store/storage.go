// Package store persists the vector index and chunk metadata. Chunks are
// grouped into immutable generations: a build stages everything under a new
// generation id and flips a single current pointer on publish, so readers
// see either the previous index or the finished new one, never a mix.
package store

import (
	"context"

	"github.com/google/uuid"

	"novelrag/types"
)

type VectorStorer interface {
	// BeginGeneration registers a fresh, unpublished generation.
	BeginGeneration(ctx context.Context) (uuid.UUID, error)

	// StageChunks writes embedded chunks under an unpublished generation.
	StageChunks(ctx context.Context, gen uuid.UUID, chunks []types.Chunk) error

	// PublishGeneration makes gen the current one atomically and records
	// the per-book content hashes of the source it was built from.
	PublishGeneration(ctx context.Context, gen uuid.UUID, hashes map[string]string) error

	// CurrentGeneration returns the published generation, or uuid.Nil when
	// no index has been published yet.
	CurrentGeneration(ctx context.Context) (uuid.UUID, error)

	// SourceHashes returns book id -> content hash for a generation.
	SourceHashes(ctx context.Context, gen uuid.UUID) (map[string]string, error)

	// Search returns the top-k chunks of gen by similarity to vec, scores
	// descending, ties broken by chunk position. An empty book filter
	// matches all books. An empty generation yields an empty result.
	Search(ctx context.Context, gen uuid.UUID, vec []float32, k int, book string) ([]types.RetrievalResult, error)

	// PruneGenerations drops stale generations, including leftovers of
	// aborted builds. It spares keep, the current generation and the one
	// published immediately before it, so requests that resolved the
	// current generation just before a publish still finish against their
	// snapshot.
	PruneGenerations(ctx context.Context, keep uuid.UUID) error

	Close() error
}
