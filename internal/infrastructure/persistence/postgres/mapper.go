package postgres

import (
	"database/sql"
	"strings"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
)

// MediaDBModel представляет запись каталога медиа в БД
type MediaDBModel struct {
	RemoteKey   string
	LoadID      string
	LoadNumber  string
	StepIndex   int
	Kind        string
	ContentType sql.NullString
	SizeBytes   int64
	CapturedAt  time.Time
	UploadedAt  time.Time
}

// ToDBModel конвертирует запись каталога в DB Model
func ToDBModel(record port.CatalogRecord, now time.Time) *MediaDBModel {
	capturedAt := record.CapturedAt.UTC()
	if capturedAt.IsZero() {
		capturedAt = now.UTC()
	}
	uploadedAt := record.UploadedAt.UTC()
	if uploadedAt.IsZero() {
		uploadedAt = now.UTC()
	}

	contentType := strings.TrimSpace(record.ContentType)
	return &MediaDBModel{
		RemoteKey:   strings.TrimSpace(record.RemoteKey),
		LoadID:      strings.TrimSpace(record.LoadID),
		LoadNumber:  strings.TrimSpace(record.LoadNumber),
		StepIndex:   record.StepIndex,
		Kind:        strings.TrimSpace(record.Kind),
		ContentType: sql.NullString{String: contentType, Valid: contentType != ""},
		SizeBytes:   record.SizeBytes,
		CapturedAt:  capturedAt,
		UploadedAt:  uploadedAt,
	}
}
