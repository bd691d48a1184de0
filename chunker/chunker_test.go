package chunker

import (
	"errors"
	"strings"
	"testing"

	"novelrag/types"
)

const sampleText = `东胜神洲有一花果山，山顶一石，产下一猴。那猴在山中行走跳跃，食草木，饮涧泉。
一日，与群猴避暑，都在松阴之下顽耍。忽见一股瀑布飞泉，众猴拍手称扬。
石猴端坐上面道：“列位呵，人而无信，不知其可。”众猴听说，即拱伏无违。
自此，石猴高登王位，将“石”字儿隐了，遂称美猴王。`

func doc(text string) types.Document {
	return types.Document{BookID: "西游记", Text: text}
}

func TestChunkerInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap above size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.overlap)
			if err == nil {
				t.Fatal("expected config error")
			}
			var cfgErr types.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T", err)
			}
		})
	}
}

func TestChunkerShortDocumentSingleChunk(t *testing.T) {
	c, err := New(1000, 100)
	if err != nil {
		t.Fatal(err)
	}
	chunks := c.Split(doc("孙悟空拜菩提祖师为师。"))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartOffset != 0 {
		t.Errorf("start offset = %d, want 0", chunks[0].StartOffset)
	}
	if got := chunks[0].Content; got != "孙悟空拜菩提祖师为师。" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestChunkerEmptyDocument(t *testing.T) {
	c, _ := New(100, 10)
	if chunks := c.Split(doc("")); chunks != nil {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunkerCoverageAndReconstruction(t *testing.T) {
	long := strings.Repeat(sampleText+"\n\n", 5)
	cases := []struct {
		name    string
		size    int
		overlap int
		text    string
	}{
		{"typical", 120, 30, long},
		{"no overlap", 80, 0, long},
		{"tight overlap", 50, 49, long},
		{"tiny chunks", 2, 1, sampleText},
		{"exact fit", len([]rune(sampleText)), 10, sampleText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.size, tc.overlap)
			if err != nil {
				t.Fatal(err)
			}
			runes := []rune(tc.text)
			chunks := c.Split(doc(tc.text))
			if len(chunks) == 0 {
				t.Fatal("no chunks produced")
			}

			if chunks[0].StartOffset != 0 {
				t.Errorf("first chunk starts at %d", chunks[0].StartOffset)
			}
			if last := chunks[len(chunks)-1]; last.EndOffset != len(runes) {
				t.Errorf("last chunk ends at %d, want %d", last.EndOffset, len(runes))
			}

			for i, ch := range chunks {
				if ch.Position != i {
					t.Errorf("chunk %d has position %d", i, ch.Position)
				}
				if got := string(runes[ch.StartOffset:ch.EndOffset]); got != ch.Content {
					t.Errorf("chunk %d content does not match its offsets", i)
				}
				if n := ch.EndOffset - ch.StartOffset; n > tc.size {
					t.Errorf("chunk %d has %d runes, budget %d", i, n, tc.size)
				}
				if i > 0 {
					prev := chunks[i-1]
					if ch.StartOffset != prev.EndOffset-tc.overlap {
						t.Errorf("chunk %d starts at %d, want %d", i, ch.StartOffset, prev.EndOffset-tc.overlap)
					}
				}
			}

			// Dropping each chunk's leading overlap reconstructs the source.
			var sb strings.Builder
			for i, ch := range chunks {
				content := []rune(ch.Content)
				if i == 0 {
					sb.WriteString(ch.Content)
				} else {
					sb.WriteString(string(content[tc.overlap:]))
				}
			}
			if sb.String() != tc.text {
				t.Error("reconstructed text differs from source")
			}
		})
	}
}

func TestChunkerPrefersSentenceBreaks(t *testing.T) {
	// A paragraph break sits inside the window; the cut should land there,
	// not at the hard size limit.
	text := strings.Repeat("甲", 40) + "\n\n" + strings.Repeat("乙", 40)
	c, _ := New(60, 5)
	chunks := c.Split(doc(text))
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Content, "\n\n") {
		t.Errorf("first chunk should end on the paragraph break, got %q", chunks[0].Content)
	}
}

func TestChunkerDeterministicIDs(t *testing.T) {
	c, _ := New(100, 20)
	first := c.Split(doc(sampleText))
	second := c.Split(doc(sampleText))
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d id changed between runs", i)
		}
	}
}

func TestChunkerIDChangesWithContentPosition(t *testing.T) {
	a := types.NewChunkID("西游记", 0, 100)
	b := types.NewChunkID("西游记", 1, 100)
	c := types.NewChunkID("红楼梦", 0, 100)
	if a == b || a == c {
		t.Error("chunk ids must differ for different coordinates")
	}
	if a != types.NewChunkID("西游记", 0, 100) {
		t.Error("chunk id must be stable for identical coordinates")
	}
}
