package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore keeps images in a local directory served at PublicPrefix.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Save writes r to <uuid>-<name> and returns its public URL.
func (s *DiskStore) Save(_ context.Context, originalName string, r io.Reader) (string, error) {
	filename := uuid.NewString() + "-" + safeName(originalName)
	path := filepath.Join(s.dir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close image file: %w", err)
	}

	return PublicPrefix + filename, nil
}

// Delete removes the file behind url. A file that is already gone is not an error.
func (s *DiskStore) Delete(_ context.Context, url string) error {
	path, err := s.resolve(url)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image file: %w", err)
	}
	return nil
}

func (s *DiskStore) resolve(url string) (string, error) {
	name, ok := strings.CutPrefix(url, PublicPrefix)
	if !ok {
		name, ok = strings.CutPrefix(url, strings.TrimPrefix(PublicPrefix, "/"))
	}
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, url)
	}
	return filepath.Join(s.dir, name), nil
}
