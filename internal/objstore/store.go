// Package objstore is the key-path storage layer the router runs on.
//
// Paths are slash-separated and start with the bucket name, the same shape
// MinIO and s3fs use: "production/img001.jpg", "labelstudio/output/lowconfidence/17".
// Callers never see backend-specific addressing.
//
// Three backends share the Store interface:
//   - S3Store talks to MinIO (or S3) through aws-sdk-go-v2.
//   - DirStore maps paths onto a local directory tree.
//   - MemStore keeps everything in memory for tests and dry runs.
package objstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Read and Copy when the source path does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the set of storage operations the router needs.
//
// Write must replace the object as a whole: readers see either the previous
// content or the new content, never a partial write. Copy overwrites dst.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	// List returns the full paths of objects directly under path, sorted.
	List(ctx context.Context, path string) ([]string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	// MakeDir ensures path can receive objects. It is a no-op when it already exists.
	MakeDir(ctx context.Context, path string) error
	Copy(ctx context.Context, src, dst string) error
}

// SplitPath splits "bucket/key/parts" into its bucket and key.
// The key is empty when path names only a bucket.
func SplitPath(path string) (bucket, key string) {
	path = strings.Trim(path, "/")
	bucket, key, _ = strings.Cut(path, "/")
	return bucket, key
}

// Join joins path elements with single slashes.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// cleanDir normalizes a directory path: no leading or trailing slash.
func cleanDir(path string) string {
	return strings.Trim(path, "/")
}
