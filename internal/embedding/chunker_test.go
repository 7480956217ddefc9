package embedding

import (
	"strings"
	"testing"
)

func TestChunkText_SingleChunkForShortText(t *testing.T) {
	chunks := ChunkText("First sentence. Second sentence! Third sentence?", ChunkOptions{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	for _, want := range []string{"First sentence.", "Second sentence!", "Third sentence?"} {
		if !strings.Contains(chunks[0], want) {
			t.Errorf("chunk missing sentence %q: %q", want, chunks[0])
		}
	}
}

func TestChunkText_EmptyInput(t *testing.T) {
	if chunks := ChunkText("", ChunkOptions{}); chunks != nil {
		t.Errorf("expected nil for empty input, got %v", chunks)
	}
	if chunks := ChunkText("   \n\t ", ChunkOptions{}); chunks != nil {
		t.Errorf("expected nil for whitespace input, got %v", chunks)
	}
}

func TestChunkText_NoTerminator(t *testing.T) {
	chunks := ChunkText("no terminator here", ChunkOptions{})
	if len(chunks) != 1 || chunks[0] != "no terminator here" {
		t.Errorf("unexpected chunks: %v", chunks)
	}
}

func TestChunkText_SplitsAtWordBudget(t *testing.T) {
	// Ten sentences of five words each, budget of 12 words per chunk.
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("one two three four five. ")
	}
	chunks := ChunkText(b.String(), ChunkOptions{ChunkWords: 12, Overlap: 0.5})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		// Each closed chunk holds at most two full sentences plus the
		// overlap seed; it must never be empty.
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

// Reconstruction property: concatenating chunks (ignoring overlap) yields all
// sentences of the input in order.
func TestChunkText_NoSentenceDropped(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("sentence number ")
		b.WriteString(strings.Repeat("x", i%3+1)) // vary content slightly
		b.WriteString(" marker")
		b.WriteString(string(rune('a' + i%26)))
		b.WriteString(". ")
	}
	text := b.String()
	sentences := splitSentences(text)

	chunks := ChunkText(text, ChunkOptions{ChunkWords: 15, Overlap: 0.5})

	joined := strings.Join(chunks, " ")
	pos := 0
	for _, s := range sentences {
		i := strings.Index(joined[pos:], s)
		if i < 0 {
			t.Fatalf("sentence %q missing (or out of order) in chunk output", s)
		}
		pos += i
	}
}

func TestChunkText_OversizedSentence(t *testing.T) {
	// One sentence far over the budget must still come through intact.
	big := strings.Repeat("word ", 50) + "end."
	chunks := ChunkText("Small one. "+big, ChunkOptions{ChunkWords: 10, Overlap: 0.5})
	joined := strings.Join(chunks, " ")
	if !strings.Contains(joined, "end.") {
		t.Error("oversized sentence was dropped")
	}
	if !strings.Contains(joined, "Small one.") {
		t.Error("leading sentence was dropped")
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"One. Two. Three.", 3},
		{"Question? Answer! Statement.", 3},
		{"no terminator", 1},
		{"", 0},
		{"Trailing fragment. and more", 2},
	}
	for _, tt := range tests {
		got := splitSentences(tt.input)
		if len(got) != tt.want {
			t.Errorf("splitSentences(%q) = %d sentences %v, want %d", tt.input, len(got), got, tt.want)
		}
	}
}
