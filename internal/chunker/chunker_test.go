package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitEmptyInput(t *testing.T) {
	c := New(Options{})
	for _, input := range []string{"", "   ", "\n\n\n\n"} {
		if got := c.Split(input); got != nil {
			t.Errorf("Split(%q) = %v, want nil", input, got)
		}
	}
}

func TestSplitUnderBudgetYieldsOneChunk(t *testing.T) {
	c := New(Options{TargetTokens: 500})
	text := "Chicken breast: 6 oz (170g) = 280 cal, 52g protein, 0g carbs, 6g fat."

	chunks := c.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want %q", chunks[0], text)
	}
}

func TestSplitPreservesParagraphOrder(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 40; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Portion rule number %d: a standard serving of item %d weighs about %d grams and provides protein.", i, i, 50+i))
	}
	text := strings.Join(paragraphs, "\n\n")

	c := New(Options{TargetTokens: 120, OverlapTokens: 20})
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Every paragraph must appear, in order, scanning the chunk stream.
	stream := strings.Join(chunks, "\n")
	pos := 0
	for i, p := range paragraphs {
		idx := strings.Index(stream[pos:], p)
		if idx < 0 {
			t.Fatalf("paragraph %d missing or out of order", i)
		}
		pos += idx
	}
}

func TestSplitRespectsBudget(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 30; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Conversion %d: one cup of cooked rice is roughly %d grams.", i, 150+i))
	}
	c := New(Options{TargetTokens: 100, OverlapTokens: 20})

	chunks := c.Split(strings.Join(paragraphs, "\n\n"))
	// Budget plus carried overlap seed and separators; nothing here forces an
	// oversized chunk.
	limit := 100 + 20
	for i, chunk := range chunks {
		if got := EstimateTokens(chunk); got > limit {
			t.Errorf("chunk %d estimates %d tokens, over limit %d", i, got, limit)
		}
	}
}

func TestSplitOversizedParagraphFallsBackToSentences(t *testing.T) {
	var sentences []string
	for i := 0; i < 25; i++ {
		sentences = append(sentences, fmt.Sprintf("Sentence %d describes a distinct portion assumption in enough words to matter.", i))
	}
	// One paragraph, far over a 60-token budget.
	text := strings.Join(sentences, " ")

	c := New(Options{TargetTokens: 60, OverlapTokens: 0})
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected sentence-level split, got %d chunks", len(chunks))
	}
	// Boundaries must fall between sentences: every chunk ends at punctuation.
	for i, chunk := range chunks {
		if !strings.HasSuffix(strings.TrimSpace(chunk), ".") {
			t.Errorf("chunk %d does not end at a sentence boundary: %q", i, chunk)
		}
	}
}

func TestSplitSingleOversizedSentence(t *testing.T) {
	sentence := strings.Repeat("verylongword ", 100) + "end."
	c := New(Options{TargetTokens: 50, OverlapTokens: 0})

	chunks := c.Split(sentence)
	if len(chunks) != 1 {
		t.Fatalf("a single oversized sentence should stay one chunk, got %d", len(chunks))
	}
}

func TestSplitSeedsOverlap(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 20; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Rule %d: cooked pasta doubles in weight compared to its dry form, roughly speaking.", i))
	}
	c := New(Options{TargetTokens: 100, OverlapTokens: 40})

	chunks := c.Split(strings.Join(paragraphs, "\n\n"))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		tail := prevWords[len(prevWords)-1]
		if !strings.Contains(chunks[i], tail) {
			t.Errorf("chunk %d does not carry trailing context %q from chunk %d", i, tail, i-1)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}
