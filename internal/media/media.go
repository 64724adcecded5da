package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"catalog-sync/internal/config"
)

// Store persists media files and returns the path they were stored under.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// New builds the store selected by cfg.Backend.
func New(cfg config.MediaConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir), nil
	case "sftp":
		return NewSFTPStore(cfg.SFTP), nil
	default:
		return nil, fmt.Errorf("media: unknown backend %q", cfg.Backend)
	}
}

// LocalStore writes files under a directory on the local disk.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) *LocalStore {
	if dir == "" {
		dir = "media"
	}
	return &LocalStore{Dir: dir}
}

// Save writes r to Dir/name, replacing any previous file, and returns name.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("media: mkdir: %w", err)
	}

	// Write to a temp file first so readers never see a partial image.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("media: create: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("media: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("media: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("media: rename %s: %w", name, err)
	}
	return name, nil
}
