package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ride-dispatch/internal/config"
	"ride-dispatch/internal/dispatch/core/ports"

	"github.com/google/uuid"
)

// FsStore keeps attachment blobs as flat files under a configured directory.
// The returned reference is relative to that directory, so the store can
// move without rewriting stored urls.
type FsStore struct {
	dir string
}

var _ ports.IImageStore = (*FsStore)(nil)

func New(cfg config.Imagesconfig) (*FsStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &FsStore{dir: cfg.Dir}, nil
}

func (s *FsStore) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return name, nil
}

func (s *FsStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// references are bare uuid names; reject anything that escapes the dir
	if strings.Contains(path, "/") || strings.Contains(path, "\\") || strings.Contains(path, "..") {
		return nil, fmt.Errorf("invalid image reference %q", path)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, path))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
