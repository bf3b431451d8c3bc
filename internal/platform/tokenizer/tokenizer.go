package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Encoding is the BPE used by gpt-4o-mini's predecessors and the
// text-embedding-3 family.
const Encoding = "cl100k_base"

// Tokenizer counts and slices text in model tokens. When the BPE tables can't
// be loaded it degrades to an estimate of four bytes per token.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var (
	sharedOnce sync.Once
	shared     *Tokenizer
)

// Shared returns the process-wide tokenizer.
func Shared() *Tokenizer {
	sharedOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(Encoding)
		if err != nil {
			enc = nil
		}
		shared = &Tokenizer{enc: enc}
	})
	return shared
}

// Approximate returns a tokenizer that never loads BPE tables.
func Approximate() *Tokenizer { return &Tokenizer{} }

func (t *Tokenizer) Exact() bool { return t != nil && t.enc != nil }

func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.Exact() {
		return len(t.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// Truncate returns the longest prefix of text that fits in maxTokens.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if t.Exact() {
		toks := t.enc.Encode(text, nil, nil)
		if len(toks) <= maxTokens {
			return text
		}
		return strings.ToValidUTF8(t.enc.Decode(toks[:maxTokens]), "")
	}
	return truncateBytes(text, maxTokens*4)
}

// Split cuts text into windows of size tokens where consecutive windows share
// overlap tokens. Blank windows are dropped.
func (t *Tokenizer) Split(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var out []string
	appendChunk := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	if t.Exact() {
		toks := t.enc.Encode(text, nil, nil)
		for start := 0; start < len(toks); start += step {
			end := start + size
			if end > len(toks) {
				end = len(toks)
			}
			appendChunk(strings.ToValidUTF8(t.enc.Decode(toks[start:end]), ""))
			if end == len(toks) {
				break
			}
		}
		return out
	}

	runes := []rune(text)
	size, step = size*4, step*4
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		appendChunk(string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
