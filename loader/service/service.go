// Package service runs the offline index build: load novels, chunk, embed,
// stage a fresh generation and publish it atomically.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"novelrag/chunker"
	"novelrag/loader/internal"
	"novelrag/model"
	"novelrag/store"
	"novelrag/types"
)

type Config struct {
	SourceDir string
	BatchSize int
	Settle    time.Duration
}

type Service struct {
	logger   *slog.Logger
	store    store.VectorStorer
	embedder model.Embedder
	chunker  *chunker.Chunker
	cfg      Config

	buildMu sync.Mutex
}

func New(storer store.VectorStorer, embedder model.Embedder, ch *chunker.Chunker, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Service{
		logger:   slog.Default(),
		store:    storer,
		embedder: embedder,
		chunker:  ch,
		cfg:      cfg,
	}
}

// Build constructs and publishes one index generation. At most one build
// runs at a time; a second trigger gets ErrBuildInProgress. Any failure
// aborts before publish, so the previously published generation stays
// queryable untouched.
func (s *Service) Build(ctx context.Context) error {
	if !s.buildMu.TryLock() {
		return types.ErrBuildInProgress
	}
	defer s.buildMu.Unlock()
	return s.build(ctx)
}

func (s *Service) build(ctx context.Context) error {
	start := time.Now()

	docs, err := internal.LoadDir(s.cfg.SourceDir)
	if err != nil {
		return types.BuildError{Stage: "load", Err: err}
	}

	hashes := make(map[string]string, len(docs))
	for _, doc := range docs {
		hashes[doc.BookID] = doc.ContentHash
	}

	unchanged, err := s.sourceUnchanged(ctx, hashes)
	if err != nil {
		return types.BuildError{Stage: "load", Err: err}
	}
	if unchanged {
		s.logger.Info("source content unchanged, keeping current index", "books", len(docs))
		return nil
	}

	var chunks []types.Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.chunker.Split(doc)...)
	}
	s.logger.Info("documents chunked", "books", len(docs), "chunks", len(chunks))

	gen, err := s.store.BeginGeneration(ctx)
	if err != nil {
		return types.BuildError{Stage: "store", Err: err}
	}

	// Embed and stage in batches; one failed batch aborts the whole build
	// rather than leaving a partially embedded index behind.
	for i := 0; i < len(chunks); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return types.BuildError{Stage: "embed", Err: err}
		}
		for j := range batch {
			batch[j].Embedding = vectors[j]
		}

		if err := s.store.StageChunks(ctx, gen, batch); err != nil {
			return types.BuildError{Stage: "store", Err: err}
		}
	}

	if err := s.store.PublishGeneration(ctx, gen, hashes); err != nil {
		return types.BuildError{Stage: "publish", Err: err}
	}
	if err := s.store.PruneGenerations(ctx, gen); err != nil {
		// The new generation is already live; stale ones only cost space.
		s.logger.Warn("pruning old generations failed", "error", err)
	}

	s.logger.Info("index generation published",
		"generation", gen,
		"books", len(docs),
		"chunks", len(chunks),
		"took", time.Since(start),
	)
	return nil
}

// BuildAsync starts a build in the background with its own deadline. It
// fails fast with ErrBuildInProgress when another build holds the lock; the
// build outcome itself is only logged.
func (s *Service) BuildAsync(timeout time.Duration) error {
	if !s.buildMu.TryLock() {
		return types.ErrBuildInProgress
	}
	go func() {
		defer s.buildMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.build(ctx); err != nil {
			s.logger.Error("background build failed", "error", err)
		}
	}()
	return nil
}

// sourceUnchanged compares per-book content hashes against the published
// generation. A rebuild of identical sources is a no-op.
func (s *Service) sourceUnchanged(ctx context.Context, hashes map[string]string) (bool, error) {
	cur, err := s.store.CurrentGeneration(ctx)
	if err != nil {
		return false, err
	}
	if cur == uuid.Nil {
		return false, nil
	}
	prev, err := s.store.SourceHashes(ctx, cur)
	if err != nil {
		return false, err
	}
	if len(prev) != len(hashes) {
		return false, nil
	}
	for book, hash := range hashes {
		if prev[book] != hash {
			return false, nil
		}
	}
	return true, nil
}

// Run builds once, then rebuilds whenever the source directory settles after
// a change. Returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Build(ctx); err != nil {
		return err
	}

	watcher, err := internal.NewWatcher(s.cfg.Settle)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	changed, err := watcher.Watch(ctx, s.cfg.SourceDir)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("loader service stopped")
			return nil
		case _, ok := <-changed:
			if !ok {
				return nil
			}
			s.logger.Info("source directory changed, rebuilding index")
			if err := s.Build(ctx); err != nil {
				// A failed rebuild keeps the previous generation serving.
				s.logger.Error("rebuild failed", "error", err)
			}
		}
	}
}
