// Package vault persists structured notes as markdown files laid out like an
// Obsidian vault: one folder per record category, YAML frontmatter per note.
// It is the durable artifact store for the orchestration pipeline.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"kittycore/internal/id"
	"kittycore/internal/logging"
)

// Well-known folders mirroring the record categories the orchestrator persists.
const (
	FolderTasks    = "tasks"
	FolderSubtasks = "subtasks"
	FolderAgents   = "agents"
	FolderResults  = "results"
	FolderSystem   = "system"
)

const defaultCacheSize = 1024

// ErrNotFound is returned by Get when no note exists for the id.
var ErrNotFound = errors.New("note not found")

// Config configures a vault.
type Config struct {
	// Root is the vault directory. Created if missing.
	Root string
	// CacheSize bounds the LRU read cache (default 1024 notes).
	CacheSize int
	Logger    logging.Logger
}

// Vault is a markdown-file note store. Saves are idempotent by note id and
// atomic (temp file + rename). There is exactly one writer per note path by
// design: the component owning that note's lifecycle.
type Vault struct {
	root   string
	logger logging.Logger

	mu    sync.RWMutex
	paths map[string]string // note id -> file path
	cache *lru.Cache[string, *Note]
}

// New opens (or initializes) a vault rooted at cfg.Root.
func New(cfg Config) (*Vault, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("vault root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *Note](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create note cache: %w", err)
	}

	v := &Vault{
		root:   root,
		logger: logging.OrNop(cfg.Logger),
		paths:  make(map[string]string),
		cache:  cache,
	}
	if err := v.reindex(); err != nil {
		return nil, err
	}
	return v, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string {
	return v.root
}

// Save upserts a note, keyed by note id. Saving the same id again overwrites
// the previous content in place, so repeated saves of identical content leave
// exactly one retrievable record.
func (v *Vault) Save(_ context.Context, note *Note) (string, error) {
	if note == nil {
		return "", fmt.Errorf("nil note")
	}
	if note.ID == "" {
		note.ID = id.NewNoteID()
	}
	if note.Folder == "" {
		note.Folder = FolderSystem
	}
	now := time.Now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	dir := filepath.Join(v.root, note.Folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder %s: %w", note.Folder, err)
	}

	encoded, err := note.encode()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, note.ID+".md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit note: %w", err)
	}

	v.mu.Lock()
	// A note that moved folders leaves no stale file behind.
	if prev, ok := v.paths[note.ID]; ok && prev != path {
		_ = os.Remove(prev)
	}
	v.paths[note.ID] = path
	v.mu.Unlock()
	v.cache.Add(note.ID, note)

	v.logger.Debug("saved note %s in %s", note.ID, note.Folder)
	return note.ID, nil
}

// Get returns the note with the given id, or ErrNotFound.
func (v *Vault) Get(_ context.Context, noteID string) (*Note, error) {
	if cached, ok := v.cache.Get(noteID); ok {
		return cached, nil
	}

	v.mu.RLock()
	path, ok := v.paths[noteID]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read note %s: %w", noteID, err)
	}
	note, err := decodeNote(raw)
	if err != nil {
		return nil, fmt.Errorf("decode note %s: %w", noteID, err)
	}
	v.cache.Add(noteID, note)
	return note, nil
}

// Search returns all notes whose frontmatter matches every filter entry.
// The pseudo-keys "folder", "title", and "id" match the corresponding note
// attributes; all other keys match Fields. Results are ordered by creation
// time ascending.
func (v *Vault) Search(ctx context.Context, filter map[string]string) ([]*Note, error) {
	v.mu.RLock()
	paths := make([]string, 0, len(v.paths))
	ids := make([]string, 0, len(v.paths))
	for noteID, path := range v.paths {
		ids = append(ids, noteID)
		paths = append(paths, path)
	}
	v.mu.RUnlock()

	var matches []*Note
	for i, noteID := range ids {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		note, err := v.Get(ctx, noteID)
		if err != nil {
			v.logger.Warn("skipping unreadable note %s: %v", paths[i], err)
			continue
		}
		if noteMatches(note, filter) {
			matches = append(matches, note)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches, nil
}

// Count returns the number of indexed notes.
func (v *Vault) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.paths)
}

func noteMatches(note *Note, filter map[string]string) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "folder":
			got = note.Folder
		case "title":
			got = note.Title
		case "id":
			got = note.ID
		default:
			got = note.Field(key)
		}
		if got != want {
			return false
		}
	}
	return true
}

// reindex walks the vault and rebuilds the id → path index.
func (v *Vault) reindex() error {
	return filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			v.logger.Warn("skipping unreadable file %s: %v", path, readErr)
			return nil
		}
		note, decodeErr := decodeNote(raw)
		if decodeErr != nil {
			v.logger.Warn("skipping non-note file %s: %v", path, decodeErr)
			return nil
		}
		v.paths[note.ID] = path
		return nil
	})
}
