package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
)

func newTestStore(t *testing.T) *MediaStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewMediaStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func makeArtifact(t *testing.T, step int, kind valueobject.MediaKind) entity.MediaArtifact {
	t.Helper()
	artifact, err := entity.NewMediaArtifact(entity.ArtifactInput{
		Kind:            kind,
		LocalURI:        "file:///spool/" + kind.String() + ".bin",
		CapturedAt:      time.Date(2026, 2, 7, 12, 0, step, 0, time.UTC),
		StepIndex:       step,
		DurationSeconds: 20,
		Muted:           true,
		LoadID:          "42",
		LoadNumber:      "LD-1001",
		SizeBytes:       128,
	})
	if err != nil {
		t.Fatalf("NewMediaArtifact: %v", err)
	}
	return artifact
}

func TestMediaStore_AppendListRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photo := makeArtifact(t, 0, valueobject.Photo)
	video := makeArtifact(t, 2, valueobject.Video)
	for _, a := range []entity.MediaArtifact{photo, video} {
		if err := s.Append(ctx, a); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	records, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(records) != 2 || records[0].Artifact.ID != photo.ID || records[1].Artifact.ID != video.ID {
		t.Fatalf("records must keep insertion order: %+v", records)
	}
	if records[0].Artifact.DurationSeconds != nil || records[0].Artifact.Muted != nil {
		t.Fatalf("photo must not carry video fields")
	}
	if records[1].Artifact.Duration() != 20 || !records[1].Artifact.IsMuted() {
		t.Fatalf("video fields lost: %+v", records[1].Artifact)
	}
	if !records[1].Artifact.CapturedAt.Equal(video.CapturedAt) {
		t.Fatalf("captured_at = %s, want %s", records[1].Artifact.CapturedAt, video.CapturedAt)
	}

	if err := s.Remove(ctx, photo.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, photo.ID); !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound, got %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if records, _ := s.ListAll(ctx); len(records) != 0 {
		t.Fatalf("expected empty store, got %d", len(records))
	}
}

func TestMediaStore_UploadStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	artifacts := []entity.MediaArtifact{
		makeArtifact(t, 0, valueobject.Photo),
		makeArtifact(t, 1, valueobject.Photo),
		makeArtifact(t, 2, valueobject.Video),
	}
	for _, a := range artifacts {
		if err := s.Append(ctx, a); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := s.MarkUploaded(ctx, artifacts[0].ID, port.RemoteInfo{RemoteKey: "loads/LD-1001/a.jpg", Location: "https://b/a.jpg", ETag: "e1"}); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	if err := s.MarkUploaded(ctx, "missing", port.RemoteInfo{}); !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound, got %v", err)
	}

	status, err := s.UploadStatus(ctx)
	if err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}
	if status.Total != 3 || status.Uploaded != 1 || status.Pending != 2 || status.UploadPercentage != 33 {
		t.Fatalf("unexpected status %+v", status)
	}

	records, _ := s.ListAll(ctx)
	if !records[0].Uploaded() || records[0].UploadedAt.IsZero() || records[1].Uploaded() {
		t.Fatalf("unexpected upload flags: %+v", records)
	}
}

func TestMediaStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
