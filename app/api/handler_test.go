package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"novelrag/app/prompt"
	"novelrag/app/session"
	"novelrag/chunker"
	"novelrag/loader/service"
	"novelrag/retriever"
	"novelrag/store"
	"novelrag/types"
)

type stubEmbedder struct {
	started chan struct{}
	release chan struct{}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(strings.Count(text, "孙悟空")), 1}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.started != nil {
		e.started <- struct{}{}
		<-e.release
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type stubGenerator struct {
	answer string
	err    error
}

func (g stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	return g.answer, g.err
}

func newChatApp(t *testing.T, s *store.MemoryStore, gen stubGenerator) *fiber.App {
	t.Helper()
	a, err := prompt.NewAssembler(prompt.RuneSizer{}, 4000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New(retriever.New(&stubEmbedder{}, s, 5), a, gen, time.Minute)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/api/v1/chat", NewChatHandler(sess).HandleChat)
	return app
}

func postChat(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func seedIndex(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	gen, err := s.BeginGeneration(ctx)
	if err != nil {
		t.Fatal(err)
	}
	err = s.StageChunks(ctx, gen, []types.Chunk{{
		ID:        types.NewChunkID("西游记", 0, 30),
		BookID:    "西游记",
		Position:  0,
		Content:   "孙悟空拜菩提祖师为师。",
		Embedding: []float32{1, 1},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PublishGeneration(ctx, gen, nil); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHandleChat(t *testing.T) {
	app := newChatApp(t, seedIndex(t), stubGenerator{answer: "孙悟空的师父是菩提祖师。"})

	resp := postChat(t, app, `{"query":"孙悟空的师父是谁？"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out types.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Answer != "孙悟空的师父是菩提祖师。" {
		t.Errorf("unexpected answer: %q", out.Answer)
	}
	if len(out.Sources) == 0 || out.Sources[0].BookID != "西游记" {
		t.Errorf("expected 西游记 citation, got %+v", out.Sources)
	}
	if out.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestHandleChatEmptyIndexHasEmptySources(t *testing.T) {
	app := newChatApp(t, store.NewMemoryStore(), stubGenerator{answer: "无法回答。"})

	resp := postChat(t, app, `{"query":"孙悟空是谁？"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Sources must serialize as [] rather than null.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["sources"]) != "[]" {
		t.Errorf("sources = %s, want []", raw["sources"])
	}
}

func TestHandleChatRejectsMalformedJSON(t *testing.T) {
	app := newChatApp(t, seedIndex(t), stubGenerator{})

	resp := postChat(t, app, `{"query": `)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleChatValidatesParams(t *testing.T) {
	app := newChatApp(t, seedIndex(t), stubGenerator{})

	resp := postChat(t, app, `{"history":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	var out types.ValidationError
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Errors["Query"]; !ok {
		t.Errorf("expected an error on Query, got %v", out.Errors)
	}
}

func TestHandleChatMapsGeneratorFailure(t *testing.T) {
	app := newChatApp(t, seedIndex(t), stubGenerator{err: errors.New("backend down")})

	resp := postChat(t, app, `{"query":"孙悟空是谁？"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHandleRebuild(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "西游记.txt"), []byte("美猴王出世。"), 0o644); err != nil {
		t.Fatal(err)
	}

	emb := &stubEmbedder{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	ch, err := chunker.New(50, 10)
	if err != nil {
		t.Fatal(err)
	}
	svc := service.New(store.NewMemoryStore(), emb, ch, service.Config{SourceDir: dir})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/api/v1/rebuild", NewBuildHandler(svc, time.Minute).HandleRebuild)

	rebuild := func() *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rebuild", nil)
		resp, err := app.Test(req, 5000)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := rebuild(); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	<-emb.started

	// The first build is still running, a second trigger must be refused.
	if resp := rebuild(); resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	close(emb.release)
}
