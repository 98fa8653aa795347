package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Object is a listed object. URL is the full "s3://bucket/key" location.
type Object struct {
	URL          string
	Size         int64
	LastModified time.Time
}

// Name returns the last path element of the object URL.
func (o Object) Name() string {
	return path.Base(o.URL)
}

// Store provides access to the object storage that holds landed, archived and
// curated files. All locations are full "s3://bucket/key" URLs.
// Implementations exist for S3 and for tests (MockStore).
type Store interface {
	// List returns the objects under prefix sorted by URL. Folder placeholder
	// objects (keys ending in "/") are skipped.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Get reads a whole object.
	Get(ctx context.Context, url string) ([]byte, error)

	// Put writes a whole object, replacing any existing one.
	Put(ctx context.Context, url string, body []byte) error

	// Copy duplicates an object to a new location.
	Copy(ctx context.Context, srcURL, dstURL string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, url string) error

	// Close releases any resources held by the store.
	Close() error
}

// Move copies src to dst and then deletes src.
func Move(ctx context.Context, s Store, srcURL, dstURL string) error {
	if err := s.Copy(ctx, srcURL, dstURL); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", srcURL, dstURL, err)
	}
	if err := s.Delete(ctx, srcURL); err != nil {
		return fmt.Errorf("failed to delete %s after copy: %w", srcURL, err)
	}
	return nil
}

// ParseURL splits "s3://bucket/key" into bucket and key. The key may be empty.
func ParseURL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 url %q: missing s3:// scheme", url)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: missing bucket", url)
	}
	return bucket, key, nil
}

// JoinPath joins a base URL and path parts with single slashes. Every part but
// the last is treated as a folder; the last part keeps a trailing slash if it
// has one.
//
//	JoinPath("s3://bucket", "folder", "file.csv") // s3://bucket/folder/file.csv
func JoinPath(base string, parts ...string) string {
	out := strings.TrimRight(base, "/")
	for i, p := range parts {
		trimmed := strings.Trim(p, "/")
		if trimmed == "" {
			continue
		}
		out += "/" + trimmed
		if i == len(parts)-1 && strings.HasSuffix(p, "/") {
			out += "/"
		}
	}
	return out
}

// Folder returns base with exactly one trailing slash.
func Folder(base string) string {
	return strings.TrimRight(base, "/") + "/"
}
