// Package memory implements an in-memory storage backend for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/hansard-crawler/internal/storage"
)

// Backend stores documents in a map.
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

// Exists reports whether p is stored.
func (b *Backend) Exists(_ context.Context, p string) (bool, error) {
	key, err := storage.CleanPath(p)
	if err != nil {
		return false, err //nolint:wrapcheck
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[key]
	return ok, nil
}

// Read returns a copy of the stored bytes.
func (b *Backend) Read(_ context.Context, p string) ([]byte, error) {
	key, err := storage.CleanPath(p)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data.
func (b *Backend) Write(_ context.Context, p string, data []byte) (int64, error) {
	key, err := storage.CleanPath(p)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return int64(len(data)), nil
}

// Delete removes p if present.
func (b *Backend) Delete(_ context.Context, p string) error {
	key, err := storage.CleanPath(p)
	if err != nil {
		return err //nolint:wrapcheck
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// Move renames src to dst.
func (b *Backend) Move(_ context.Context, src, dst string) error {
	from, err := storage.CleanPath(src)
	if err != nil {
		return err //nolint:wrapcheck
	}
	to, err := storage.CleanPath(dst)
	if err != nil {
		return err //nolint:wrapcheck
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[from]
	if !ok {
		return fmt.Errorf("move %s: %w", src, storage.ErrNotFound)
	}
	delete(b.data, from)
	b.data[to] = data
	return nil
}

// List returns the sorted keys starting with prefix.
func (b *Backend) List(_ context.Context, prefix string) ([]string, error) {
	cleanPrefix, err := storage.CleanPrefix(prefix)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.data))
	for k := range b.data {
		if strings.HasPrefix(k, cleanPrefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Size returns the stored length of p.
func (b *Backend) Size(_ context.Context, p string) (int64, error) {
	key, err := storage.CleanPath(p)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.data[key]
	if !ok {
		return 0, fmt.Errorf("size %s: %w", p, storage.ErrNotFound)
	}
	return int64(len(data)), nil
}
