package port

import (
	"context"
	"time"
)

// CatalogRecord is one uploaded media reference kept by the backend catalog.
type CatalogRecord struct {
	LoadID      string
	LoadNumber  string
	StepIndex   int
	Kind        string
	RemoteKey   string
	ContentType string
	SizeBytes   int64
	CapturedAt  time.Time
	UploadedAt  time.Time
}

// MediaCatalog persists metadata rows for successfully uploaded media.
type MediaCatalog interface {
	PutBatch(ctx context.Context, records []CatalogRecord) error
}
