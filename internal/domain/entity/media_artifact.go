package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/securecam/internal/domain/valueobject"
	"github.com/google/uuid"
)

// MediaArtifact is the file produced by one completed capture step.
// It is passed by value and never mutated after NewMediaArtifact returns.
type MediaArtifact struct {
	ID              string
	Kind            valueobject.MediaKind
	LocalURI        string
	CapturedAt      time.Time
	StepIndex       int
	DurationSeconds *int
	Muted           *bool
	LoadID          string
	LoadNumber      string
	SizeBytes       int64
}

// ArtifactInput carries the data a camera produced for one step.
type ArtifactInput struct {
	Kind            valueobject.MediaKind
	LocalURI        string
	CapturedAt      time.Time
	StepIndex       int
	DurationSeconds int
	Muted           bool
	LoadID          string
	LoadNumber      string
	SizeBytes       int64
}

// NewMediaArtifact validates the input and assigns a random ID.
func NewMediaArtifact(in ArtifactInput) (MediaArtifact, error) {
	if err := in.Kind.Validate(); err != nil {
		return MediaArtifact{}, err
	}
	if strings.TrimSpace(in.LocalURI) == "" {
		return MediaArtifact{}, fmt.Errorf("local uri is required")
	}
	if in.StepIndex < 0 {
		return MediaArtifact{}, fmt.Errorf("step index must be >= 0")
	}

	capturedAt := in.CapturedAt.UTC()
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	artifact := MediaArtifact{
		ID:         uuid.New().String(),
		Kind:       in.Kind,
		LocalURI:   in.LocalURI,
		CapturedAt: capturedAt,
		StepIndex:  in.StepIndex,
		LoadID:     in.LoadID,
		LoadNumber: in.LoadNumber,
		SizeBytes:  in.SizeBytes,
	}

	if in.Kind == valueobject.Video {
		duration := in.DurationSeconds
		muted := in.Muted
		artifact.DurationSeconds = &duration
		artifact.Muted = &muted
	}

	return artifact, nil
}

// Duration returns the recorded length in seconds, 0 for photos.
func (a MediaArtifact) Duration() int {
	if a.DurationSeconds == nil {
		return 0
	}
	return *a.DurationSeconds
}

// IsMuted reports whether a video was recorded without audio.
func (a MediaArtifact) IsMuted() bool {
	return a.Muted != nil && *a.Muted
}
