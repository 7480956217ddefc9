package embedding

import (
	"math"
	"strings"
)

// Default chunking parameters.
const (
	// DefaultChunkWords is the word budget per chunk.
	DefaultChunkWords = 300

	// DefaultOverlap is the fraction of a closed chunk's sentences seeded
	// into the next chunk.
	DefaultOverlap = 0.5
)

// ChunkOptions configure sentence-based chunking.
type ChunkOptions struct {
	// ChunkWords is the maximum running word count per chunk
	// (0 = DefaultChunkWords).
	ChunkWords int

	// Overlap is the trailing fraction of sentences carried into the next
	// chunk, rounded up (0 = DefaultOverlap; negative disables overlap).
	Overlap float64
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.ChunkWords <= 0 {
		o.ChunkWords = DefaultChunkWords
	}
	if o.Overlap == 0 {
		o.Overlap = DefaultOverlap
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	return o
}

// ChunkText splits text into overlapping chunks on sentence boundaries.
//
// Sentences accumulate until the running word count would exceed the chunk
// budget; the chunk then closes and the next chunk is seeded with the
// trailing overlap fraction of the closed chunk's sentences (rounded up).
// Non-empty input always yields at least one chunk, and every sentence of
// the input appears in order across the chunks (overlap aside).
func ChunkText(text string, opts ChunkOptions) []string {
	opts = opts.withDefaults()

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		words   int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with the trailing sentences of this one.
		// The cap at len-1 keeps a single oversized sentence from seeding
		// itself forward forever.
		keep := int(math.Ceil(float64(len(current)) * opts.Overlap))
		if keep >= len(current) {
			keep = len(current) - 1
		}
		if keep <= 0 {
			current = nil
			words = 0
			return
		}
		seed := make([]string, keep)
		copy(seed, current[len(current)-keep:])
		current = seed
		words = countWords(current)
	}

	for _, sentence := range sentences {
		n := len(strings.Fields(sentence))
		if words+n > opts.ChunkWords && len(current) > 0 {
			flush()
		}
		current = append(current, sentence)
		words += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// splitSentences splits text at '.', '!' and '?' boundaries, keeping the
// terminator with its sentence. Trailing text without a terminator forms a
// final sentence.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func countWords(sentences []string) int {
	n := 0
	for _, s := range sentences {
		n += len(strings.Fields(s))
	}
	return n
}
