// Package objectstore deletes the blobs that deleted records leave behind.
package objectstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type Store interface {
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Delete returns ErrNotFound when the object does not exist.
	Delete(ctx context.Context, key string) error
}

// KeyFromPath turns a stored blob path into an object key. Signed URLs and
// CDN URLs are reduced to their path without the query string.
func KeyFromPath(path string) string {
	path = strings.TrimSpace(path)
	if u, err := url.Parse(path); err == nil && u.Scheme != "" && u.Host != "" {
		path = u.Path
	} else if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.TrimPrefix(path, "/")
}
