package port

import (
	"context"
	"io"
)

// MediaSource opens the locally captured bytes of an artifact.
type MediaSource interface {
	// Open returns the content and its size in bytes.
	Open(ctx context.Context, localURI string) (io.ReadCloser, int64, error)
}
