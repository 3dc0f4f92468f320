package embedding

import (
	"context"
	"hash/fnv"

	"github.com/sattyani/ai-procurement-agent/pkg/utils"
)

// spread is the number of buckets each feature is added to.
const spread = 4

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "with": true, "will": true,
}

// HashingEmbedder maps text to a signed feature-hashing vector of word unigrams and
// bigrams. Identical text always embeds identically and texts sharing words land close
// together, which makes it usable offline and in tests. The model name salts the hash so
// two models never share a vector space.
type HashingEmbedder struct {
	model      string
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given output dimensions.
func NewHashingEmbedder(model string, dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{model: model, dimensions: dimensions}
}

// Embed returns the L2-normalised hashed feature vector of text.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	var prev string
	for _, term := range Terms(text) {
		if stopWords[term] {
			continue
		}
		e.add(vec, term)
		if prev != "" {
			e.add(vec, prev+" "+term)
		}
		prev = term
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *HashingEmbedder) add(vec []float32, feature string) {
	for p := 0; p < spread; p++ {
		h := fnv.New64a()
		_, _ = h.Write([]byte(e.model))
		_, _ = h.Write([]byte{0, byte(p)})
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashingEmbedder.
func (e *HashingEmbedder) Close() error {
	return nil
}
