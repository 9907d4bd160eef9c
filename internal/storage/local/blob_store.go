// Package local implements a local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/hansard-crawler/internal/storage"
)

// Config captures the parameters for the local filesystem backend.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Backend stores documents under a base directory.
type Backend struct {
	baseDir string
}

var _ storage.Backend = (*Backend)(nil)

// New creates a local backend, creating the base directory if needed and
// verifying it is writable.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable_test")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("close probe file: %w", err)
	}
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Backend{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// BaseDir returns the root directory.
func (b *Backend) BaseDir() string {
	return b.baseDir
}

func (b *Backend) resolve(p string) (string, error) {
	rel, err := storage.CleanPath(p)
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	full := filepath.Join(b.baseDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", storage.ErrPathTraversal, p)
	}
	return full, nil
}

// Exists reports whether a regular file exists at p.
func (b *Backend) Exists(_ context.Context, p string) (bool, error) {
	full, err := b.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return info.Mode().IsRegular(), nil
}

// Read returns the file contents.
func (b *Backend) Read(_ context.Context, p string) ([]byte, error) {
	full, err := b.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) // #nosec G304 -- path is confined to baseDir by resolve.
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Write stores data atomically: it is written to a temporary file in the
// target directory and renamed into place.
func (b *Backend) Write(_ context.Context, p string, data []byte) (int64, error) {
	full, err := b.resolve(p)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if writeErr != nil {
			return 0, fmt.Errorf("write %s: %w", p, writeErr)
		}
		return 0, fmt.Errorf("close %s: %w", p, closeErr)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("rename into %s: %w", p, err)
	}
	return int64(n), nil
}

// Delete removes the file at p. Missing files are ignored.
func (b *Backend) Delete(_ context.Context, p string) error {
	full, err := b.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Move renames src to dst, creating dst's parent directories.
func (b *Backend) Move(_ context.Context, src, dst string) error {
	from, err := b.resolve(src)
	if err != nil {
		return err
	}
	to, err := b.resolve(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move %s: %w", src, storage.ErrNotFound)
		}
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

// List walks the base directory and returns the relative paths of regular
// files starting with prefix. Temporary files from in-flight writes are
// skipped.
func (b *Backend) List(_ context.Context, prefix string) ([]string, error) {
	cleanPrefix, err := storage.CleanPrefix(prefix)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	var out []string
	err = filepath.WalkDir(b.baseDir, func(full string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, cleanPrefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

// Size returns the file size in bytes.
func (b *Backend) Size(_ context.Context, p string) (int64, error) {
	full, err := b.resolve(p)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("size %s: %w", p, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", p, err)
	}
	return info.Size(), nil
}
