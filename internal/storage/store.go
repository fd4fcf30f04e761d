// Package storage implements the blob store behind research files: a local
// directory store for development and tests, and a MinIO/S3 store for
// deployments. Both hand out opaque paths that the database records.
package storage

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a path does not resolve to a stored blob.
var ErrNotFound = errors.New("blob not found")

// FileStore stores and retrieves file bytes by opaque path.
type FileStore interface {
	Store(ctx context.Context, data []byte, name, contentType string) (string, error)
	Retrieve(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey builds a collision-free key "YYYY/MM/<uuid>-<name>" where name
// is reduced to a safe character set.
func objectKey(name string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return path.Join(now.UTC().Format("2006/01"), uuid.NewString()+"-"+base)
}

// validKey rejects keys that could escape the store root.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
