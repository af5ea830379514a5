package ports

import "context"

// IImageStore round-trips opaque attachment blobs; the core only keeps the
// reference path it hands back.
type IImageStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
}
