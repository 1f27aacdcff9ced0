// Package memory provides the semantic recall store the orchestrator feeds
// with run summaries. Entries are embedded and searched with chromem-go; the
// embedding function is injectable so tests stay offline.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"kittycore/internal/id"
	"kittycore/internal/logging"
)

const tagsMetadataKey = "_tags"

// Config holds memory index configuration.
type Config struct {
	// PersistDir, when set, persists the collection on disk.
	PersistDir string
	// Collection names the chromem collection (default "kittycore").
	Collection string
	Logger     logging.Logger
}

// EmbeddingFunc turns text into a vector. Signature matches chromem's.
type EmbeddingFunc = chromem.EmbeddingFunc

// Match is one ranked recall hit.
type Match struct {
	ID      string
	Content string
	Tags    []string
	Context map[string]string
	Score   float32
}

// Index is the semantic memory store.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     logging.Logger
}

// NewIndex creates a memory index. When embed is nil a deterministic local
// embedding is used, which keeps the index functional without a provider.
func NewIndex(cfg Config, embed EmbeddingFunc) (*Index, error) {
	if cfg.Collection == "" {
		cfg.Collection = "kittycore"
	}
	if embed == nil {
		embed = LocalEmbedding()
	}

	var db *chromem.DB
	var err error
	if cfg.PersistDir != "" {
		persistFile := filepath.Join(cfg.PersistDir, "memory.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Index{
		db:         db,
		collection: collection,
		logger:     logging.OrNop(cfg.Logger),
	}, nil
}

// Remember stores text with its context map and tags, returning the memory id.
func (i *Index) Remember(ctx context.Context, text string, context_ map[string]string, tags []string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("text is required")
	}

	memID := id.NewMemoryID()
	metadata := make(map[string]string, len(context_)+1)
	for k, v := range context_ {
		metadata[k] = v
	}
	if len(tags) > 0 {
		metadata[tagsMetadataKey] = strings.Join(tags, ",")
	}

	err := i.collection.AddDocument(ctx, chromem.Document{
		ID:       memID,
		Content:  text,
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("add memory: %w", err)
	}

	i.logger.Debug("remembered %s (%d chars, %d tags)", memID, len(text), len(tags))
	return memID, nil
}

// Recall returns up to limit memories ranked by relevance descending. An
// empty result is not an error.
func (i *Index) Recall(ctx context.Context, query string, limit int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	// chromem rejects queries asking for more results than stored documents.
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := i.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, toMatch(r))
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	return matches, nil
}

// Count returns the number of stored memories.
func (i *Index) Count() int {
	return i.collection.Count()
}

func toMatch(r chromem.Result) Match {
	match := Match{
		ID:      r.ID,
		Content: r.Content,
		Score:   r.Similarity,
		Context: make(map[string]string, len(r.Metadata)),
	}
	for k, v := range r.Metadata {
		if k == tagsMetadataKey {
			if v != "" {
				match.Tags = strings.Split(v, ",")
			}
			continue
		}
		match.Context[k] = v
	}
	return match
}
