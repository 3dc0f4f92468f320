package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/sattyani/ai-procurement-agent/internal/metrics"
)

// contentKey addresses a cached vector by the hash of its text, so long scope
// summaries are not held twice in memory.
type contentKey [sha256.Size]byte

func keyOf(text string) contentKey {
	return sha256.Sum256([]byte(text))
}

// EmbeddingCache is a fixed-capacity LRU of embeddings addressed by text content.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	index    map[contentKey]*list.Element
	recency  *list.List // front is most recently used
}

type cached struct {
	key contentKey
	vec []float32
}

// NewEmbeddingCache creates a cache holding at most capacity vectors.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: max(capacity, 1),
		index:    make(map[contentKey]*list.Element, capacity),
		recency:  list.New(),
	}
}

// Get returns the vector cached for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	k := keyOf(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[k]
	if !ok {
		return nil, false
	}
	c.recency.MoveToFront(el)
	return el.Value.(*cached).vec, true
}

// Set caches vec for text and evicts the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	k := keyOf(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[k]; ok {
		el.Value.(*cached).vec = vec
		c.recency.MoveToFront(el)
		return
	}
	c.index[k] = c.recency.PushFront(&cached{key: k, vec: vec})
	for c.recency.Len() > c.capacity {
		last := c.recency.Remove(c.recency.Back()).(*cached)
		delete(c.index, last.key)
	}
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// CachedEmbedder serves repeated texts from an EmbeddingCache. Returned slices are
// shared with the cache and must not be modified.
type CachedEmbedder struct {
	Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{Embedder: inner, cache: NewEmbeddingCache(capacity)}
}

func (e *CachedEmbedder) lookup(text string) ([]float32, bool) {
	v, ok := e.cache.Get(text)
	if ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}
	return v, ok
}

// Embed returns the cached embedding for text or computes and stores it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.lookup(text); ok {
		return v, nil
	}
	v, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, v)
	return v, nil
}

// EmbedBatch sends only the cache misses to the inner embedder, in one call.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string
	for i, text := range texts {
		if v, ok := e.lookup(text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(misses) == 0 {
		return out, nil
	}
	vecs, err := e.Embedder.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(misses) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(misses), len(vecs))
	}
	for j, text := range misses {
		e.cache.Set(text, vecs[j])
		for _, i := range pending[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}
