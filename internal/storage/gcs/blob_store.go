// Package gcs provides a storage backend on a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/hansard-crawler/internal/storage"
)

const pdfContentType = "application/pdf"

// Config captures the bucket and optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Backend stores documents as objects under Prefix in Bucket.
type Backend struct {
	client *gcstorage.Client
	bucket string
	prefix string
}

var _ storage.Backend = (*Backend)(nil)

// New creates a GCS-backed storage backend.
func New(client *gcstorage.Client, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
	}, nil
}

// Open creates a client with Application Default Credentials and checks
// that the bucket is reachable.
func Open(ctx context.Context, cfg Config) (*Backend, func() error, error) {
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("get GCS bucket %q attributes: %w", cfg.Bucket, err)
	}
	b, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return b, client.Close, nil
}

// notExist also matches raw 404s, which the rewrite call does not translate.
func notExist(err error) bool {
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (b *Backend) objectName(p string) (string, error) {
	rel, err := storage.CleanPath(p)
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return b.prefix + rel, nil
}

func (b *Backend) object(p string) (*gcstorage.ObjectHandle, error) {
	name, err := b.objectName(p)
	if err != nil {
		return nil, err
	}
	return b.client.Bucket(b.bucket).Object(name), nil
}

// Exists reports whether the object exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	obj, err := b.object(p)
	if err != nil {
		return false, err
	}
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", p, err)
	}
	return true, nil
}

// Read downloads the object.
func (b *Backend) Read(ctx context.Context, p string) ([]byte, error) {
	obj, err := b.object(p)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("open reader for %s: %w", p, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Write uploads data. The object only becomes visible once the writer closes
// successfully.
func (b *Backend) Write(ctx context.Context, p string, data []byte) (int64, error) {
	obj, err := b.object(p)
	if err != nil {
		return 0, err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = pdfContentType
	n, err := w.Write(data)
	if err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return 0, fmt.Errorf("write object %s: %w (close writer: %v)", p, err, closeErr)
		}
		return 0, fmt.Errorf("write object %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("close writer for %s: %w", p, err)
	}
	return int64(n), nil
}

// Delete removes the object; a missing object is not an error.
func (b *Backend) Delete(ctx context.Context, p string) error {
	obj, err := b.object(p)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", p, err)
	}
	return nil
}

// Move copies src to dst then deletes src.
func (b *Backend) Move(ctx context.Context, src, dst string) error {
	from, err := b.object(src)
	if err != nil {
		return err
	}
	to, err := b.object(dst)
	if err != nil {
		return err
	}
	if _, err := to.CopierFrom(from).Run(ctx); err != nil {
		if notExist(err) {
			return fmt.Errorf("move %s: %w", src, storage.ErrNotFound)
		}
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := from.Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("delete moved object %s: %w", src, err)
	}
	return nil
}

// List returns the relative paths of objects under prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	cleanPrefix, err := storage.CleanPrefix(prefix)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	it := b.client.Bucket(b.bucket).Objects(ctx, &gcstorage.Query{Prefix: b.prefix + cleanPrefix})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, err)
		}
		if rel, ok := b.relative(attrs.Name); ok {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) relative(objectName string) (string, bool) {
	if !strings.HasPrefix(objectName, b.prefix) || strings.HasSuffix(objectName, "/") {
		return "", false
	}
	return strings.TrimPrefix(objectName, b.prefix), true
}

// Size returns the object size from its attributes.
func (b *Backend) Size(ctx context.Context, p string) (int64, error) {
	obj, err := b.object(p)
	if err != nil {
		return 0, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return 0, fmt.Errorf("size %s: %w", p, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("stat object %s: %w", p, err)
	}
	return attrs.Size, nil
}
