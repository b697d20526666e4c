// Package chunker splits raw knowledge text into overlapping, size-bounded
// segments for ingestion. The output order defines chunk_index.
package chunker

import (
	"regexp"
	"strings"
)

// Default chunking parameters, in token-equivalents.
const (
	DefaultTargetTokens  = 500
	DefaultOverlapTokens = 50
	DefaultParagraphSep  = "\n\n"
)

// sentencePattern matches sentence units by punctuation lookahead. The final
// alternative catches a trailing fragment without closing punctuation.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+['")\]]*|[^.!?]+$`)

// Options configures a Chunker. Zero values fall back to the defaults.
type Options struct {
	// TargetTokens is the chunk size budget in token-equivalents.
	TargetTokens int

	// OverlapTokens controls how much trailing context from a flushed chunk
	// seeds the next one. Roughly half of it is carried over as words.
	OverlapTokens int

	// ParagraphSep separates paragraph units in the input. Default: blank line.
	ParagraphSep string
}

// Chunker splits text into chunks. Safe for concurrent use.
type Chunker struct {
	opts Options
}

// New creates a Chunker. An unset target or separator takes the default; a
// negative overlap takes the default while zero means no overlap.
func New(opts Options) *Chunker {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = DefaultTargetTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.ParagraphSep == "" {
		opts.ParagraphSep = DefaultParagraphSep
	}
	return &Chunker{opts: opts}
}

// EstimateTokens estimates the token count of s as ceil(len(s)/4).
//
// This is a deliberate approximation: chunk-size tuning downstream assumes
// this character-count heuristic, so it must not be replaced with an exact
// tokenizer.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Split divides text into ordered chunk strings.
//
// Paragraphs accumulate into a buffer that is flushed once the next paragraph
// would exceed the size budget; the next buffer is seeded with trailing words
// from the flushed chunk so local context survives the boundary. A paragraph
// that alone exceeds the budget is re-split at sentence boundaries and packed
// with the same strategy. Empty input yields no chunks; input under the
// budget yields exactly one.
func (c *Chunker) Split(text string) []string {
	paragraphs := splitParagraphs(text, c.opts.ParagraphSep)
	if len(paragraphs) == 0 {
		return nil
	}

	var (
		chunks    []string
		buf       strings.Builder
		bufTokens int
		fresh     bool // buffer holds content not yet emitted
	)

	flush := func() {
		if !fresh {
			return
		}
		chunk := buf.String()
		chunks = append(chunks, chunk)

		buf.Reset()
		bufTokens = 0
		fresh = false
		if seed := tailWords(chunk, c.opts.OverlapTokens/2); seed != "" {
			buf.WriteString(seed)
			bufTokens = EstimateTokens(seed)
		}
	}

	add := func(unit, joiner string) {
		t := EstimateTokens(unit)
		if fresh && bufTokens+t > c.opts.TargetTokens {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString(joiner)
		}
		buf.WriteString(unit)
		bufTokens += t
		fresh = true
	}

	for _, p := range paragraphs {
		if EstimateTokens(p) > c.opts.TargetTokens {
			// Oversized paragraph: same flush/seed strategy at sentence
			// granularity. A single sentence over the budget still becomes
			// one chunk; boundaries never fall mid-sentence otherwise.
			for _, s := range splitSentences(p) {
				add(s, " ")
			}
			continue
		}
		add(p, c.opts.ParagraphSep)
	}

	flush()
	return chunks
}

// splitParagraphs splits text on the separator, trimming whitespace and
// dropping empty units.
func splitParagraphs(text, sep string) []string {
	parts := strings.Split(text, sep)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitSentences splits a paragraph into sentence units by punctuation.
func splitSentences(p string) []string {
	matches := sentencePattern.FindAllString(p, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			sentences = append(sentences, m)
		}
	}
	if len(sentences) == 0 {
		return []string{strings.TrimSpace(p)}
	}
	return sentences
}

// tailWords returns the trailing words of chunk whose combined token estimate
// reaches maxTokens. Returns "" when maxTokens is zero.
func tailWords(chunk string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	words := strings.Fields(chunk)
	total := 0
	i := len(words)
	for i > 0 {
		t := EstimateTokens(words[i-1])
		if total+t > maxTokens {
			break
		}
		total += t
		i--
	}
	if i == len(words) {
		return ""
	}
	return strings.Join(words[i:], " ")
}
