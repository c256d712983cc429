package adapters

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

// LocalEmbedder is a deterministic, offline bag-of-words embedder using hashed
// token buckets. It is a degraded-mode default for environments without an
// embedding service; identical text always yields the identical vector, and
// texts sharing vocabulary score high cosine similarity.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a local embedder. Dimension defaults to 256.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &LocalEmbedder{dims: dims}
}

// Embed hashes lowercase tokens into buckets and L2-normalizes the result.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([]ports.Vector, error) {
	vectors := make([]ports.Vector, len(texts))
	for i, text := range texts {
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *LocalEmbedder) embedOne(text string) ports.Vector {
	vec := make(ports.Vector, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (e *LocalEmbedder) Dimension() int { return e.dims }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Ensure LocalEmbedder implements the Embedder interface.
var _ ports.Embedder = (*LocalEmbedder)(nil)
