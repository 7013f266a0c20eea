// Package cache is the content-addressed persistent cache for model calls.
// Keys are sha256 digests of "phase::prompt_version::payload"; values are
// JSON documents stored one file per key with atomic replacement. A small
// LRU keeps hot entries in memory. There is no TTL; invalidation happens by
// bumping the prompt version in the key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a persistent key→JSON cache rooted at one directory. Safe for
// concurrent readers; writers are single per key by construction (one phase
// task owns a given key).
type Store struct {
	dir string
	mem *lru.Cache[string, json.RawMessage]
}

// DefaultMemEntries is the in-memory LRU size.
const DefaultMemEntries = 4096

// Open creates (if needed) and returns a cache store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	mem, err := lru.New[string, json.RawMessage](DefaultMemEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache LRU: %w", err)
	}
	return &Store{dir: dir, mem: mem}, nil
}

// Key derives the content-addressed cache key from its parts, e.g.
// Key("skim", "v1", segmentHash).
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "::")))
	return hex.EncodeToString(sum[:])
}

// path shards files by the first two hex chars to keep directories small.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key[:2], key+".json")
}

// Get returns the cached JSON for key, or ok=false on a miss.
func (s *Store) Get(key string) (json.RawMessage, bool, error) {
	if v, ok := s.mem.Get(key); ok {
		return v, true, nil
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	raw := json.RawMessage(data)
	s.mem.Add(key, raw)
	return raw, true, nil
}

// GetInto unmarshals the cached value for key into v. Returns ok=false on a
// miss.
func (s *Store) GetInto(key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		// A corrupt entry behaves like a miss; the caller will overwrite it.
		return false, nil
	}
	return true, nil
}

// Set stores v under key. The write is crash-safe: temp file in the target
// directory, fsync, then rename.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create cache shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache entry: %w", err)
	}
	s.mem.Add(key, json.RawMessage(data))
	return nil
}
