// Package storage defines the blob backend used for downloaded transcripts.
// Paths are always relative, slash separated, and resolved against a
// backend-chosen root (a directory, a bucket prefix, or a map).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrPathTraversal is returned for paths that escape the backend root.
	ErrPathTraversal = errors.New("path traversal detected")
)

// Backend is the capability set every blob backend implements.
type Backend interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, error)
	// Write stores data and returns the number of bytes persisted.
	Write(ctx context.Context, path string, data []byte) (int64, error)
	// Delete is idempotent; deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
	Move(ctx context.Context, src, dst string) error
	// List returns the paths under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Size(ctx context.Context, path string) (int64, error)
}

// CleanPath normalizes a relative path and rejects anything that is empty,
// absolute, or escapes the root.
func CleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrPathTraversal, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
	}
	return cleaned, nil
}

// CleanPrefix is CleanPath for list prefixes, where empty means everything.
func CleanPrefix(prefix string) (string, error) {
	if strings.TrimSpace(prefix) == "" {
		return "", nil
	}
	cleaned, err := CleanPath(prefix)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(prefix, "/") {
		cleaned += "/"
	}
	return cleaned, nil
}
