package adapters

import (
	"bytes"
	"context"
	"sync"

	"github.com/armon/go-radix"

	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/ports"
)

// MemoryStore is an in-process Store backed by a radix tree so namespace prefixes
// can be walked without scanning unrelated keys.
type MemoryStore struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tree: radix.New()}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.tree.Get(key)
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneBytes(v.([]byte)), nil
}

// Set stores a copy of value, replacing any previous value.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Insert(key, cloneBytes(value))
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Delete(key)
	return nil
}

// DeleteIf removes key only when its current value equals expected.
func (s *MemoryStore) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.tree.Get(key)
	if !ok || !bytes.Equal(v.([]byte), expected) {
		return false, nil
	}
	s.tree.Delete(key)
	return true, nil
}

// Keys returns all keys starting with prefix in lexical order.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	s.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return false
	})
	return keys, nil
}

// Len returns the number of stored keys across all namespaces.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var (
	_ ports.Store              = (*MemoryStore)(nil)
	_ ports.Lister             = (*MemoryStore)(nil)
	_ ports.ConditionalDeleter = (*MemoryStore)(nil)
)
