package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/metrics"
	"github.com/aven-agent/backend/internal/vector/zilliz"
	"github.com/aven-agent/backend/pkg/logger"
	"github.com/aven-agent/backend/pkg/utils"
)

// fingerprintLength is how many leading characters of a fragment feed its
// dedup fingerprint.
const fingerprintLength = 100

// domainTopK is the smaller K used by domain-scoped sub-searches.
const domainTopK = 3

// Fragment is one knowledge-base hit handed to the orchestrator.
type Fragment struct {
	ID        string
	Text      string
	SourceURL string
	Score     float64
	Timestamp time.Time
}

// Embedder vectorizes query text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs a similarity search against the knowledge collection.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]zilliz.SearchResult, error)
}

// EmbeddingCache stores query embeddings keyed by text hash so repeated
// queries skip the embedding call.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// Retriever fetches semantically relevant knowledge fragments. Failures at
// the embedding or search boundary degrade to an empty result set: a broken
// knowledge base must not abort the whole request.
type Retriever struct {
	embedder Embedder
	store    VectorSearcher
	cache    EmbeddingCache
}

// NewRetriever builds a retriever. cache may be nil, in which case every
// query is embedded directly.
func NewRetriever(embedder Embedder, store VectorSearcher, cache EmbeddingCache) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		cache:    cache,
	}
}

// Retrieve runs the primary search plus one scoped sub-search per domain tag,
// merges, deduplicates by content fingerprint, ranks by score descending and
// truncates to topK.
func (r *Retriever) Retrieve(ctx context.Context, query string, domains []string, topK int) []Fragment {
	primary, err := r.search(ctx, query, topK)
	if err != nil {
		logger.Warn("Primary knowledge search failed", zap.Error(err))
		primary = nil
	}

	// Domain sub-searches are independent reads; issue them concurrently
	// and join before deduplication.
	var mu sync.Mutex
	var wg sync.WaitGroup
	merged := primary

	for _, domain := range domains {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			scoped := fmt.Sprintf("%s %s information", query, domain)
			results, err := r.search(ctx, scoped, domainTopK)
			if err != nil {
				logger.Warn("Domain knowledge search failed",
					zap.String("domain", domain), zap.Error(err))
				return
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}(domain)
	}
	wg.Wait()

	deduped := dedupe(merged)
	if topK > 0 && len(deduped) > topK {
		deduped = deduped[:topK]
	}

	logger.Info("Knowledge retrieval completed",
		zap.Int("primary", len(primary)),
		zap.Int("merged", len(merged)),
		zap.Int("returned", len(deduped)),
		zap.Strings("domains", domains),
	)

	return deduped
}

func (r *Retriever) search(ctx context.Context, query string, topK int) ([]Fragment, error) {
	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, result := range results {
		fragments = append(fragments, Fragment{
			ID:        result.ChunkID,
			Text:      result.Text,
			SourceURL: result.SourceURL,
			Score:     float64(result.Score),
			Timestamp: result.Timestamp,
		})
	}

	return fragments, nil
}

// embedQuery consults the embedding cache before calling the embedder.
// Cache failures are advisory: a broken cache falls through to a direct
// embedding call.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.cache == nil {
		return r.embedder.GenerateEmbedding(ctx, query)
	}

	textHash := utils.HashString(query)

	cached, found, err := r.cache.GetEmbedding(ctx, textHash)
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
	} else if found {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetEmbedding(ctx, textHash, embedding); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}

	return embedding, nil
}

// dedupe sorts by score descending, then keeps the first fragment for each
// content fingerprint so the best-scoring copy survives.
func dedupe(fragments []Fragment) []Fragment {
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Score > fragments[j].Score
	})

	seen := make(map[string]bool, len(fragments))
	unique := make([]Fragment, 0, len(fragments))
	for _, fragment := range fragments {
		fp := utils.Fingerprint(fragment.Text, fingerprintLength)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		unique = append(unique, fragment)
	}

	return unique
}
