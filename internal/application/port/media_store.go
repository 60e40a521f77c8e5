package port

import (
	"context"
	"time"

	"github.com/dreschagin/securecam/internal/domain/entity"
)

// StoredMedia is a device-local media record.
type StoredMedia struct {
	Artifact   entity.MediaArtifact
	RemoteKey  string
	Location   string
	ETag       string
	UploadedAt time.Time
}

// Uploaded reports whether the record carries remote storage information.
func (m StoredMedia) Uploaded() bool {
	return m.RemoteKey != "" && m.Location != ""
}

// UploadStatus summarises local records against their upload state.
type UploadStatus struct {
	Total            int
	Uploaded         int
	Pending          int
	UploadPercentage int
}

// RemoteInfo is attached to a local record after a successful upload.
type RemoteInfo struct {
	RemoteKey string
	Location  string
	ETag      string
}

// MediaStore is the device-local key-value store of captured media.
type MediaStore interface {
	Append(ctx context.Context, artifact entity.MediaArtifact) error
	ListAll(ctx context.Context) ([]StoredMedia, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	MarkUploaded(ctx context.Context, id string, info RemoteInfo) error
	UploadStatus(ctx context.Context) (UploadStatus, error)
}
