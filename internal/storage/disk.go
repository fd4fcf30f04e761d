package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DiskStore keeps blobs under a local root directory.
type DiskStore struct {
	Root string
	Now  func() time.Time
}

// NewDiskStore creates root if needed and returns a store rooted there.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, errors.New("storage: disk root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &DiskStore{Root: root, Now: time.Now}, nil
}

func (d *DiskStore) full(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("storage: invalid path %q", key)
	}
	return filepath.Join(d.Root, filepath.FromSlash(key)), nil
}

// Store writes data under a fresh key and returns it.
func (d *DiskStore) Store(ctx context.Context, data []byte, name, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	key := objectKey(name, now())
	p, err := d.full(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("storage: write: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	return key, nil
}

// Retrieve reads the blob at key.
func (d *DiskStore) Retrieve(_ context.Context, key string) ([]byte, error) {
	p, err := d.full(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Delete removes the blob at key. Deleting a missing blob is not an error.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	p, err := d.full(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// Exists reports whether a blob is stored at key.
func (d *DiskStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := d.full(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
