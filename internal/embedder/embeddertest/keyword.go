// Package embeddertest provides a deterministic in-process embedder for tests.
package embeddertest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/dshills/ragroute/internal/embedder"
)

// Dimension of the vectors produced by Keyword
const Dimension = 256

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "does": true, "do": true,
	"how": true, "i": true, "is": true, "it": true, "of": true, "s": true,
	"the": true, "to": true, "what": true, "who": true, "you": true, "your": true,
}

// Keyword embeds text as a normalized bag of hashed content words, so two
// phrasings sharing the same content words have cosine similarity 1.
type Keyword struct {
	// Err, when set, is returned by every Embed call
	Err   error
	calls atomic.Int64
}

var _ embedder.Embedder = (*Keyword)(nil)

// Embed returns one unit vector per text
func (k *Keyword) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls.Add(1)
	if k.Err != nil {
		return nil, k.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, Dimension)
		for _, w := range Words(t) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%Dimension]++
		}
		out[i] = embedder.Normalize(v)
	}
	return out, nil
}

// Dimension returns the fixed vector size
func (k *Keyword) Dimension() int { return Dimension }

// Calls reports how many Embed calls were made
func (k *Keyword) Calls() int { return int(k.calls.Load()) }

// Words lowercases text, splits it on anything but letters and digits and
// drops stopwords.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
