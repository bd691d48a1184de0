package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"novelrag/app/prompt"
	"novelrag/chunker"
	"novelrag/loader/service"
	"novelrag/retriever"
	"novelrag/store"
	"novelrag/types"
)

// keywordEmbedder projects text onto a few character-name axes, so
// retrieval in tests behaves like a real embedding space in miniature:
// a question about 孙悟空 lands near 西游记 passages.
type keywordEmbedder struct{}

var keywords = []string{"孙悟空", "菩提", "林黛玉", "贾宝玉"}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(keywords))
	for i, kw := range keywords {
		vec[i] = float32(strings.Count(text, kw))
	}
	return vec, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// recordingGenerator captures the prompt it was asked to complete.
type recordingGenerator struct {
	system string
	prompt string
	answer string
	err    error
	block  bool
}

func (g *recordingGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.system = system
	g.prompt = prompt
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func buildIndex(t *testing.T, books map[string]string) *store.MemoryStore {
	t.Helper()
	dir := t.TempDir()
	for book, text := range books {
		if err := os.WriteFile(filepath.Join(dir, book+".txt"), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := store.NewMemoryStore()
	ch, err := chunker.New(500, 100)
	if err != nil {
		t.Fatal(err)
	}
	svc := service.New(s, keywordEmbedder{}, ch, service.Config{SourceDir: dir})
	if err := svc.Build(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestSession(t *testing.T, s *store.MemoryStore, gen *recordingGenerator, timeout time.Duration) *Session {
	t.Helper()
	a, err := prompt.NewAssembler(prompt.RuneSizer{}, 4000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	r := retriever.New(keywordEmbedder{}, s, 5)
	return New(r, a, gen, timeout)
}

var testBooks = map[string]string{
	"西游记": "孙悟空在花果山称王，后来漂洋过海，拜菩提祖师为师，学得七十二般变化。",
	"红楼梦": "林黛玉自幼体弱多病，进贾府后与贾宝玉朝夕相处，二人情意渐深。",
}

func TestAskCitesTheRightBook(t *testing.T) {
	s := buildIndex(t, testBooks)
	gen := &recordingGenerator{answer: "孙悟空的师父是菩提祖师。"}
	sess := newTestSession(t, s, gen, time.Minute)

	ans, err := sess.Ask(context.Background(), types.QueryParams{Query: "孙悟空的师父是谁？"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.State != StateCompleted {
		t.Errorf("state = %s, want %s", ans.State, StateCompleted)
	}
	if ans.Answer != gen.answer {
		t.Errorf("unexpected answer: %q", ans.Answer)
	}
	if len(ans.Sources) == 0 {
		t.Fatal("expected at least one cited source")
	}
	if ans.Sources[0].BookID != "西游记" {
		t.Errorf("top source cites %s, want 西游记", ans.Sources[0].BookID)
	}
	if !strings.Contains(gen.prompt, "孙悟空在花果山") {
		t.Error("prompt should carry the supporting passage")
	}
}

func TestAskExtractsStructuredAnswer(t *testing.T) {
	s := buildIndex(t, testBooks)
	gen := &recordingGenerator{
		answer: `{"thinking": "西游记段落提到拜菩提祖师为师。", "final_answer": "菩提祖师"}`,
	}
	sess := newTestSession(t, s, gen, time.Minute)

	ans, err := sess.Ask(context.Background(), types.QueryParams{Query: "孙悟空的师父是谁？"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "菩提祖师" {
		t.Errorf("answer = %q, want the final_answer field", ans.Answer)
	}
	if ans.Thinking != "西游记段落提到拜菩提祖师为师。" {
		t.Errorf("thinking = %q, want the thinking field", ans.Thinking)
	}
}

func TestAskKeepsRawOutputWhenNotJSON(t *testing.T) {
	s := buildIndex(t, testBooks)
	gen := &recordingGenerator{answer: "孙悟空的师父是菩提祖师。"}
	sess := newTestSession(t, s, gen, time.Minute)

	ans, err := sess.Ask(context.Background(), types.QueryParams{Query: "孙悟空的师父是谁？"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "孙悟空的师父是菩提祖师。" {
		t.Errorf("non-JSON output should pass through unchanged, got %q", ans.Answer)
	}
	if ans.Thinking != "" {
		t.Errorf("fallback answers carry no thinking, got %q", ans.Thinking)
	}
}

func TestAskCarriesHistoryIntoThePrompt(t *testing.T) {
	s := buildIndex(t, testBooks)
	gen := &recordingGenerator{answer: "她多愁善感。"}
	sess := newTestSession(t, s, gen, time.Minute)

	// The follow-up only says 她; the referent lives in the history.
	history := []types.ConversationTurn{
		{Role: types.RoleUser, Content: "林黛玉是谁？"},
		{Role: types.RoleAssistant, Content: "林黛玉是《红楼梦》中的人物，贾宝玉的表妹。"},
	}
	_, err := sess.Ask(context.Background(), types.QueryParams{
		Query:   "她的性格怎么样？",
		History: history,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gen.prompt, "林黛玉是谁？") || !strings.Contains(gen.prompt, "贾宝玉的表妹") {
		t.Error("prompt should carry the conversation history")
	}
	if !strings.Contains(gen.prompt, "她的性格怎么样？") {
		t.Error("prompt should end with the current question")
	}
}

func TestAskOnEmptyIndexStillGenerates(t *testing.T) {
	gen := &recordingGenerator{answer: "根据提供的资料，我无法回答这个问题。"}
	sess := newTestSession(t, store.NewMemoryStore(), gen, time.Minute)

	ans, err := sess.Ask(context.Background(), types.QueryParams{Query: "孙悟空是谁？"})
	if err != nil {
		t.Fatalf("empty index must not fail the request: %v", err)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(ans.Sources))
	}
	if ans.Sources == nil {
		t.Error("sources should be an empty slice, not nil")
	}
	if !strings.Contains(gen.prompt, prompt.NoPassagesMarker) {
		t.Error("prompt should carry the no-passages marker")
	}
}

func TestAskWrapsGeneratorFailure(t *testing.T) {
	boom := errors.New("model backend down")
	gen := &recordingGenerator{err: boom}
	sess := newTestSession(t, buildIndex(t, testBooks), gen, time.Minute)

	_, err := sess.Ask(context.Background(), types.QueryParams{Query: "孙悟空是谁？"})
	var genErr types.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T", err)
	}
	if !errors.Is(err, boom) {
		t.Error("wrapped error should preserve the cause")
	}
}

func TestAskTimesOut(t *testing.T) {
	gen := &recordingGenerator{block: true}
	sess := newTestSession(t, buildIndex(t, testBooks), gen, 50*time.Millisecond)

	_, err := sess.Ask(context.Background(), types.QueryParams{Query: "孙悟空是谁？"})
	var genErr types.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout should surface the deadline cause")
	}
}
