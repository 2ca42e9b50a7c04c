// Package storage keeps evidence artifacts (screenshots, console and network logs) that are
// linked from filed defects.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a requested artifact does not exist.
	ErrFileNotFound = errors.New("storage: file not found")

	// ErrInvalidPath is returned when a path is empty, absolute or escapes the store.
	ErrInvalidPath = errors.New("storage: invalid path")
)

// BlobStorage stores evidence artifacts.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path, contentType string, reader io.Reader) error

	// Download retrieves data from the specified path. Check uses it to read back what it wrote.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// GetURL returns a link a ticket reader can follow. Local storage returns the file path.
	GetURL(ctx context.Context, path string) (string, error)
}

// Config selects and configures a BlobStorage. An empty Type disables evidence storage.
type Config struct {
	Type          string        `mapstructure:"type"`
	BaseDir       string        `mapstructure:"base_dir"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	Prefix        string        `mapstructure:"prefix"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// New creates the BlobStorage named by cfg.Type. It returns nil, nil when storage is disabled.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case "local":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("storage: base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)
	case "s3":
		s, err := NewS3Storage(ctx, cfg.Bucket, cfg.Region)
		if err != nil {
			return nil, err
		}
		s.prefix = strings.Trim(cfg.Prefix, "/")
		if cfg.PresignExpiry > 0 {
			s.presignExpiration = cfg.PresignExpiry
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage: unsupported storage type %q", cfg.Type)
	}
}

// CheckKey is the object Check writes. It is overwritten on every check.
const CheckKey = "sentinel-check.txt"

// Check writes a small object to store and reads it back, proving that evidence can be both
// uploaded and retrieved with the configured credentials.
func Check(ctx context.Context, store BlobStorage) error {
	payload := []byte("ui-sentinel storage check " + time.Now().UTC().Format(time.RFC3339))
	if err := store.Upload(ctx, CheckKey, "text/plain", bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("storage: check upload: %w", err)
	}
	rc, err := store.Download(ctx, CheckKey)
	if err != nil {
		return fmt.Errorf("storage: check download: %w", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("storage: check read: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("storage: check object came back altered")
	}
	return nil
}

// cleanKey validates p and returns it as a slash-separated relative key.
func cleanKey(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute paths not allowed", ErrInvalidPath)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}
	return clean, nil
}
