package port

import (
	"context"
	"time"
)

// EventPublisher defines the interface for publishing domain events to a message broker
type EventPublisher interface {
	// PublishEvent publishes an event to the specified subject
	PublishEvent(ctx context.Context, subject string, event any) error

	// Close closes the connection to the message broker
	Close() error
}

// MediaUploadedEvent is published once per successfully uploaded batch.
type MediaUploadedEvent struct {
	LoadID     string    `json:"load_id"`
	LoadNumber string    `json:"load_number"`
	Keys       []string  `json:"keys"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SubjectMediaUploaded is the broker subject for MediaUploadedEvent.
const SubjectMediaUploaded = "securecam.media.uploaded"
