package store

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"novelrag/types"
)

// PostgresStore keeps the index in Postgres with the pgvector extension.
// The loader and the server can run as separate processes against the same
// database: the schema is self-describing and the current-generation pointer
// lives in a single row.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if dim <= 0 {
		dim = 768
	}
	return &PostgresStore{
		pool: pool,
		dim:  dim,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createIndexTables(ctx)
}

func (p *PostgresStore) createIndexTables(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS index_generations (
		id UUID PRIMARY KEY,
		built_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS index_books (
		generation_id UUID NOT NULL REFERENCES index_generations(id) ON DELETE CASCADE,
		book_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (generation_id, book_id)
	);

    CREATE TABLE IF NOT EXISTS chunks (
        id UUID NOT NULL,
        generation_id UUID NOT NULL REFERENCES index_generations(id) ON DELETE CASCADE,
        book_id TEXT NOT NULL,
        position INT NOT NULL,
        start_offset INT NOT NULL,
        end_offset INT NOT NULL,
        content TEXT NOT NULL,
        embedding vector(%d) NOT NULL,
        PRIMARY KEY (generation_id, id)
    );

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_book ON chunks(generation_id, book_id);

	-- Single-row pointer to the published generation. The previous one is
	-- remembered so in-flight readers pinned to it survive the next prune.
	CREATE TABLE IF NOT EXISTS index_current (
		one_row BOOL PRIMARY KEY DEFAULT TRUE CHECK (one_row),
		generation_id UUID NOT NULL REFERENCES index_generations(id),
		previous_generation_id UUID REFERENCES index_generations(id)
	);
    `, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) BeginGeneration(ctx context.Context) (uuid.UUID, error) {
	gen := uuid.New()
	_, err := p.pool.Exec(ctx, "INSERT INTO index_generations (id) VALUES ($1)", gen)
	if err != nil {
		return uuid.Nil, err
	}
	return gen, nil
}

func (p *PostgresStore) StageChunks(ctx context.Context, gen uuid.UUID, chunks []types.Chunk) error {
	batch := &pgx.Batch{}
	query := `
    INSERT INTO chunks (id, generation_id, book_id, position, start_offset, end_offset, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	for _, c := range chunks {
		batch.Queue(query,
			c.ID, gen, c.BookID, c.Position, c.StartOffset, c.EndOffset, c.Content,
			pgvector.NewVector(c.Embedding),
		)
	}
	return p.pool.SendBatch(ctx, batch).Close()
}

func (p *PostgresStore) PublishGeneration(ctx context.Context, gen uuid.UUID, hashes map[string]string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for bookID, hash := range hashes {
		_, err := tx.Exec(ctx,
			"INSERT INTO index_books (generation_id, book_id, content_hash) VALUES ($1, $2, $3)",
			gen, bookID, hash,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO index_current (one_row, generation_id) VALUES (TRUE, $1)
		ON CONFLICT (one_row) DO UPDATE
		SET previous_generation_id = index_current.generation_id,
		    generation_id = EXCLUDED.generation_id
	`, gen)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) CurrentGeneration(ctx context.Context) (uuid.UUID, error) {
	var gen uuid.UUID
	err := p.pool.QueryRow(ctx, "SELECT generation_id FROM index_current").Scan(&gen)
	if err == pgx.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return gen, nil
}

func (p *PostgresStore) SourceHashes(ctx context.Context, gen uuid.UUID) (map[string]string, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT book_id, content_hash FROM index_books WHERE generation_id = $1", gen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var bookID, hash string
		if err := rows.Scan(&bookID, &hash); err != nil {
			return nil, err
		}
		hashes[bookID] = hash
	}
	return hashes, rows.Err()
}

func (p *PostgresStore) Search(ctx context.Context, gen uuid.UUID, vec []float32, k int, book string) ([]types.RetrievalResult, error) {
	if gen == uuid.Nil {
		return nil, nil
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT c.id, c.book_id, c.position, c.content,
		       1 - (c.embedding <=> $2) AS score
		FROM chunks c
		WHERE c.generation_id = $1 AND ($4 = '' OR c.book_id = $4)
		ORDER BY c.embedding <=> $2, c.position
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, gen, pgvector.NewVector(vec), k, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.RetrievalResult
	for rows.Next() {
		var r types.RetrievalResult
		if err := rows.Scan(&r.ChunkID, &r.BookID, &r.Position, &r.Content, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (p *PostgresStore) PruneGenerations(ctx context.Context, keep uuid.UUID) error {
	// Cascades take the chunks and book rows with the generation. The
	// previously published generation is spared for one more cycle so
	// requests that pinned it before the swap can finish.
	_, err := p.pool.Exec(ctx, `
		DELETE FROM index_generations
		WHERE id <> $1
		  AND id NOT IN (SELECT generation_id FROM index_current)
		  AND id NOT IN (
			SELECT previous_generation_id FROM index_current
			WHERE previous_generation_id IS NOT NULL
		  )
	`, keep)
	return err
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
