package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/mod/semver"
)

// StorageKey names the persisted ledger. The major version is part of the key
// so incompatible layouts never collide on disk.
const StorageKey = "cart-storage-v2"

// StorageVersion is written into every envelope. Envelopes whose major version
// differs are ignored on load.
const StorageVersion = "v2.1.0"

// ErrIncompatibleVersion is returned by Load when the persisted envelope was
// written by an incompatible release.
var ErrIncompatibleVersion = errors.New("persisted cart version incompatible")

// Store persists ledger line items across restarts.
type Store interface {
	Load(ctx context.Context) ([]LineItem, error)
	Save(ctx context.Context, items []LineItem) error
}

// envelope is the persisted layout. ItemCount is written for debugging only;
// Restore recomputes derived values from Items.
type envelope struct {
	Version   string     `json:"version"`
	SavedAt   time.Time  `json:"saved_at"`
	Items     []LineItem `json:"items"`
	ItemCount int        `json:"item_count"`
}

// FileStore keeps the ledger as a JSON document in a directory.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store writing to dir/StorageKey.json.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("ledger directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, StorageKey+".json")}, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads persisted items. A missing file is an empty cart.
func (s *FileStore) Load(_ context.Context) ([]LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing ledger: %w", err)
	}
	if !Compatible(env.Version) {
		return nil, fmt.Errorf("%w: %q", ErrIncompatibleVersion, env.Version)
	}
	return env.Items, nil
}

// Save writes items atomically (temp file + rename).
func (s *FileStore) Save(_ context.Context, items []LineItem) error {
	env := envelope{
		Version: StorageVersion,
		SavedAt: time.Now().UTC(),
		Items:   items,
	}
	if env.Items == nil {
		env.Items = []LineItem{}
	}
	for _, item := range items {
		env.ItemCount += item.Quantity
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// Compatible reports whether a persisted version can be read by this release.
func Compatible(version string) bool {
	if !semver.IsValid(version) {
		return false
	}
	return semver.Major(version) == semver.Major(StorageVersion)
}

// MemoryStore keeps items in memory. Used when no persistence is configured.
type MemoryStore struct {
	mu    sync.Mutex
	items []LineItem
	saves int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(items ...LineItem) *MemoryStore {
	return &MemoryStore{items: items}
}

func (s *MemoryStore) Load(context.Context) ([]LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, items []LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]LineItem(nil), items...)
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
