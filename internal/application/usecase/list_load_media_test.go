package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/pkg/logger"
)

func TestListLoadMedia_SortsByStepThenNewest(t *testing.T) {
	base := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)
	storage := &mockObjectStorage{objects: []port.StoredObject{
		{Key: "loads/LD-1/2026-02-07T12-00-03-000Z-step3-video.mp4", LastModified: base.Add(3 * time.Minute)},
		{Key: "loads/LD-1/2026-02-07T12-00-01-000Z-step1-photo.jpg", LastModified: base.Add(1 * time.Minute)},
		{Key: "loads/LD-1/2026-02-07T12-05-01-000Z-step1-photo.jpg", LastModified: base.Add(5 * time.Minute)},
		{Key: "loads/LD-1/2026-02-07T12-00-02-000Z-step2-photo.jpg", LastModified: base.Add(2 * time.Minute)},
		{Key: "loads/LD-2/2026-02-07T12-00-02-000Z-step2-photo.jpg", LastModified: base},
	}}
	uc := NewListLoadMediaUseCase(storage, ListLoadMediaConfig{}, logger.New("error"))

	res, err := uc.Execute(context.Background(), ListLoadMediaCommand{LoadKey: "LD-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	wantKeys := []string{
		"loads/LD-1/2026-02-07T12-05-01-000Z-step1-photo.jpg",
		"loads/LD-1/2026-02-07T12-00-01-000Z-step1-photo.jpg",
		"loads/LD-1/2026-02-07T12-00-02-000Z-step2-photo.jpg",
		"loads/LD-1/2026-02-07T12-00-03-000Z-step3-video.mp4",
	}
	if len(res.Items) != len(wantKeys) {
		t.Fatalf("expected %d items, got %d", len(wantKeys), len(res.Items))
	}
	for i, key := range wantKeys {
		if res.Items[i].Key != key {
			t.Fatalf("item %d = %q, want %q", i, res.Items[i].Key, key)
		}
		if res.Items[i].URL == "" {
			t.Fatalf("expected signed url for %s", key)
		}
	}
	if res.Items[3].Kind != "video" || res.Items[3].Step != 3 {
		t.Fatalf("unexpected parsed item %+v", res.Items[3])
	}

	for _, ttl := range storage.signedTTLs {
		if ttl != time.Hour {
			t.Fatalf("expected default ttl 1h, got %s", ttl)
		}
	}
}

func TestListLoadMedia_CustomTTL(t *testing.T) {
	storage := &mockObjectStorage{objects: []port.StoredObject{{Key: "loads/LD-1/clip.mov"}}}
	uc := NewListLoadMediaUseCase(storage, ListLoadMediaConfig{}, logger.New("error"))

	res, err := uc.Execute(context.Background(), ListLoadMediaCommand{LoadKey: "LD-1", URLTTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Items[0].Kind != "video" {
		t.Fatalf("expected kind from extension, got %q", res.Items[0].Kind)
	}
	if storage.signedTTLs[0] != 5*time.Minute {
		t.Fatalf("unexpected ttl %s", storage.signedTTLs[0])
	}
}

func TestDeleteLoadMedia(t *testing.T) {
	storage := &mockObjectStorage{objects: []port.StoredObject{
		{Key: "loads/LD-1/a-step1-photo.jpg"},
		{Key: "loads/LD-1/b-step2-photo.jpg"},
		{Key: "loads/LD-10/c-step1-photo.jpg"},
	}}
	uc := NewDeleteLoadMediaUseCase(storage, DeleteLoadMediaConfig{}, logger.New("error"))

	count, err := uc.Execute(context.Background(), DeleteLoadMediaCommand{LoadKey: "LD-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if count != 2 || len(storage.deleteBatch) != 1 || len(storage.deleteBatch[0]) != 2 {
		t.Fatalf("unexpected delete: count=%d batches=%v", count, storage.deleteBatch)
	}

	count, err = uc.Execute(context.Background(), DeleteLoadMediaCommand{LoadKey: "LD-1", Key: "loads/LD-1/a-step1-photo.jpg"})
	if err != nil || count != 1 || len(storage.deleted) != 1 {
		t.Fatalf("single delete failed: count=%d err=%v", count, err)
	}

	if _, err := uc.Execute(context.Background(), DeleteLoadMediaCommand{LoadKey: "LD-1", Key: "loads/LD-10/c-step1-photo.jpg"}); err == nil {
		t.Fatalf("expected error for key outside the load prefix")
	}
}
