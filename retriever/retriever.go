// Package retriever turns a user question into scored passages from the
// published index generation.
package retriever

import (
	"context"

	"github.com/google/uuid"

	"novelrag/model"
	"novelrag/store"
	"novelrag/types"
)

type Retriever struct {
	embedder model.Embedder
	store    store.VectorStorer
	topK     int
}

func New(embedder model.Embedder, storer store.VectorStorer, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		embedder: embedder,
		store:    storer,
		topK:     topK,
	}
}

// Retrieve embeds the query and searches the current generation. The
// generation is resolved once and used for the whole call, so a concurrent
// rebuild never mixes into the results. An empty index yields empty results
// and no error: "nothing relevant" is a valid outcome, not a failure.
func (r *Retriever) Retrieve(ctx context.Context, query, book string) ([]types.RetrievalResult, error) {
	gen, err := r.store.CurrentGeneration(ctx)
	if err != nil {
		return nil, types.RetrievalError{Err: err}
	}
	if gen == uuid.Nil {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, types.RetrievalError{Err: err}
	}

	results, err := r.store.Search(ctx, gen, vec, r.topK, book)
	if err != nil {
		return nil, types.RetrievalError{Err: err}
	}
	return results, nil
}
