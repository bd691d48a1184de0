package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk IDs. Changing it invalidates every
// persisted index.
var chunkNamespace = uuid.MustParse("8f2b5c44-1d6a-4d3e-9a87-3c0f6de1b5a2")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Document is one loaded novel: the whole normalized text plus the identity
// needed to detect content changes between builds.
type Document struct {
	BookID      string
	Text        string
	SourcePath  string
	ModTime     time.Time
	ContentHash string
}

// Chunk is an embedded passage of a document. Offsets are rune offsets into
// the normalized document text.
type Chunk struct {
	ID          uuid.UUID
	BookID      string
	Position    int
	StartOffset int
	EndOffset   int
	Content     string
	Embedding   []float32
}

// NewChunkID derives a stable chunk id from its coordinates, so rebuilding
// unchanged content yields the same ids.
func NewChunkID(bookID string, start, end int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d:%d", bookID, start, end)))
}

// ConversationTurn is one prior message, supplied by the caller on every
// request. The server keeps no session state.
type ConversationTurn struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// RetrievalResult is a scored passage returned by the retriever for a single
// request.
type RetrievalResult struct {
	ChunkID  uuid.UUID
	BookID   string
	Position int
	Content  string
	Score    float64
}

type Source struct {
	BookID   string `json:"book_id"`
	ChunkID  string `json:"chunk_id"`
	Position int    `json:"position"`
}
