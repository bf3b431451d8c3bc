package ingestion

import "github.com/meravakil/meravakil-backend/internal/platform/tokenizer"

type Chunker struct {
	tok     *tokenizer.Tokenizer
	size    int
	overlap int
}

// NewChunker cuts text into size-token windows sharing overlap tokens.
func NewChunker(tok *tokenizer.Tokenizer, size, overlap int) *Chunker {
	if tok == nil {
		tok = tokenizer.Shared()
	}
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{tok: tok, size: size, overlap: overlap}
}

func (c *Chunker) Chunk(text string) []string {
	return c.tok.Split(text, c.size, c.overlap)
}
