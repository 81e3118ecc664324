// Package storage persists uploaded post images and removes them when posts change.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"socialfeed/internal/config"

	"github.com/gabriel-vasile/mimetype"
)

// PublicPrefix is the URL path prefix images are served under.
const PublicPrefix = "/images/"

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

var (
	// ErrUnsupportedType is returned by Ingest for anything other than png, jpeg or avif.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrOutsideRoot is returned when a URL does not map to a stored image.
	ErrOutsideRoot = errors.New("image path outside storage root")
)

var allowedTypes = []string{"image/png", "image/jpeg", "image/avif"}

// ImageStore saves image bytes under a collision-resistant name and deletes them by URL.
type ImageStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// New builds the ImageStore selected by cfg.ImageStorage.
func New(cfg *config.Config) (ImageStore, error) {
	switch strings.ToLower(cfg.ImageStorage) {
	case "s3":
		s3Store, err := NewS3Store(S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UseSSL:          cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	case "disk", "":
		disk, err := NewDiskStore(cfg.ImageDir)
		if err != nil {
			return nil, err
		}
		return disk, nil
	default:
		return nil, fmt.Errorf("unsupported IMAGE_STORAGE %q", cfg.ImageStorage)
	}
}

// Ingest checks the leading bytes of r and, if they are an accepted image
// type, saves the full stream through store.
func Ingest(ctx context.Context, store ImageStore, originalName string, r io.Reader) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	if !Allowed(head) {
		return "", ErrUnsupportedType
	}

	return store.Save(ctx, originalName, io.MultiReader(bytes.NewReader(head), r))
}

// Allowed reports whether data starts like a png, jpeg or avif image.
func Allowed(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	mt := mimetype.Detect(data)
	for _, t := range allowedTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// safeName reduces an uploaded file name to its base, without separators.
func safeName(originalName string) string {
	name := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0, ' ':
			return '-'
		}
		return r
	}, name)
	if name == "." || name == ".." || name == "" || name == "-" {
		return "image"
	}
	return name
}
