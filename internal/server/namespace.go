package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// namespaceFile is the global file recording the active vector namespace.
const namespaceFile = "namespace.json"

// NamespaceStore persists the active namespace across runs. Every new
// pipeline run consults it before uploading.
type NamespaceStore struct {
	mu   sync.Mutex
	path string
}

// NewNamespaceStore anchors the store at the artifacts root.
func NewNamespaceStore(root string) *NamespaceStore {
	return &NamespaceStore{path: filepath.Join(root, namespaceFile)}
}

type namespaceRecord struct {
	Active string `json:"active"`
}

// Active returns the persisted namespace, or fallback when none was set.
func (s *NamespaceStore) Active(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fallback
	}
	var rec namespaceRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Active == "" {
		return fallback
	}
	return rec.Active
}

// SetActive persists a new active namespace atomically.
func (s *NamespaceStore) SetActive(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(namespaceRecord{Active: namespace})
	if err != nil {
		return fmt.Errorf("failed to marshal namespace record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts root: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".namespace-*")
	if err != nil {
		return fmt.Errorf("failed to create temp namespace file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write namespace file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close namespace file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace namespace file: %w", err)
	}
	return nil
}
