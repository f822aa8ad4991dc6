// Package hash provides a deterministic, dependency-free embedder.
//
// Vectors are built by feature hashing: every lower-cased word and every
// character trigram of a word is hashed (xxhash) into one of Dimensions
// buckets with a hash-derived sign, and the result is L2-normalized. Texts
// that share vocabulary therefore land close to each other under cosine
// similarity, and the same text always yields the same vector.
package hash

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/oceanbase/powermem-recall/pkg/embedder"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 384

const trigramWeight = 0.5

// Embedder implements embedder.Provider with feature hashing.
type Embedder struct {
	dimensions int
	seed       uint64
}

// Config configures the hash embedder.
type Config struct {
	// Dimensions is the vector size (default 384).
	Dimensions int

	// Seed perturbs the hash so independent embedders produce unrelated
	// spaces. Vectors are only comparable between embedders with equal seeds.
	Seed uint64
}

// New creates a hash embedder. A nil config uses the defaults.
func New(cfg *Config) *Embedder {
	if cfg == nil {
		cfg = &Config{}
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims, seed: cfg.Seed}
}

// Embed returns the normalized feature-hashed vector of text. Empty text
// yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, e.dimensions)
	for _, word := range words(text) {
		e.add(vec, "w:"+word, 1)
		runes := []rune(word)
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "t:"+string(runes[i:i+3]), trigramWeight)
		}
	}
	return embedder.Normalize(vec), nil
}

// Similarity is cosine similarity.
func (e *Embedder) Similarity(a, b []float64) float64 {
	return embedder.CosineSimilarity(a, b)
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) add(vec []float64, feature string, weight float64) {
	d := xxhash.New()
	var seed [8]byte
	for i := range seed {
		seed[i] = byte(e.seed >> (8 * i))
	}
	_, _ = d.Write(seed[:])
	_, _ = d.WriteString(feature)
	h := d.Sum64()

	bucket := int(h % uint64(len(vec)))
	if (h>>63)&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
