package memory

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"kittycore/internal/jsonx"
)

// EmbedderConfig holds remote embedding configuration.
type EmbedderConfig struct {
	Model     string // default "text-embedding-3-small"
	APIKey    string
	BaseURL   string // optional, defaults to OpenAI
	CacheSize int    // LRU cache size, default 10000
}

// NewRemoteEmbedding returns an EmbeddingFunc backed by an OpenAI-compatible
// embeddings endpoint with an LRU cache in front of it.
func NewRemoteEmbedding(config EmbedderConfig) (EmbeddingFunc, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.CacheSize == 0 {
		config.CacheSize = 10000
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	endpoint := strings.TrimRight(config.BaseURL, "/") + "/embeddings"

	return func(ctx context.Context, text string) ([]float32, error) {
		if cached, ok := cache.Get(text); ok {
			return cached, nil
		}

		body, err := jsonx.Marshal(map[string]any{
			"model": config.Model,
			"input": text,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+config.APIKey)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read embedding response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding API %s: %s", resp.Status, string(respBody))
		}

		var parsed struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := jsonx.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		if len(parsed.Data) == 0 {
			return nil, fmt.Errorf("embedding API returned no data")
		}

		cache.Add(text, parsed.Data[0].Embedding)
		return parsed.Data[0].Embedding, nil
	}, nil
}

const localEmbeddingDims = 256

// LocalEmbedding returns a deterministic hashed bag-of-words embedding.
// It is not semantically deep but gives stable, offline similarity ranking
// for tests and for deployments without an embedding provider.
func LocalEmbedding() EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, localEmbeddingDims)
		for _, term := range tokenizeForEmbedding(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(term))
			vec[h.Sum32()%localEmbeddingDims]++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			// A zero vector breaks cosine similarity; mark the empty document.
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

func tokenizeForEmbedding(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 0x80
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
