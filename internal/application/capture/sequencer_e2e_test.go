package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/pkg/logger"
)

type e2eStorage struct {
	mu   sync.Mutex
	keys []string
}

func (s *e2eStorage) HeadBucket(context.Context) error { return nil }

func (s *e2eStorage) PutObject(_ context.Context, key, _ string, _ []byte, progress port.ProgressFunc) (port.PutObjectResult, error) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	attempt := len(s.keys)
	s.mu.Unlock()

	if attempt == 2 {
		return port.PutObjectResult{}, errors.New("network connection lost")
	}
	progress(100)
	return port.PutObjectResult{Key: key, Location: "https://bucket/" + key, ETag: "etag"}, nil
}

func (s *e2eStorage) PutObjectStream(ctx context.Context, key, contentType string, body io.Reader, _ int64, progress port.ProgressFunc) (port.PutObjectResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return port.PutObjectResult{}, err
	}
	return s.PutObject(ctx, key, contentType, data, progress)
}

func (s *e2eStorage) ListObjects(context.Context, string) ([]port.StoredObject, error) {
	return nil, nil
}
func (s *e2eStorage) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (s *e2eStorage) DeleteObject(context.Context, string) error    { return nil }
func (s *e2eStorage) DeleteObjects(context.Context, []string) error { return nil }

type e2eSource struct{}

func (e2eSource) Open(_ context.Context, localURI string) (io.ReadCloser, int64, error) {
	data := []byte(localURI)
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

type e2eCatalog struct {
	records []port.CatalogRecord
}

func (c *e2eCatalog) PutBatch(_ context.Context, records []port.CatalogRecord) error {
	c.records = append(c.records, records...)
	return nil
}

func TestSequencer_EndToEnd_PartialUpload(t *testing.T) {
	log := logger.New("error")
	storage := &e2eStorage{}
	catalog := &e2eCatalog{}
	pipeline := usecase.NewUploadMediaBatchUseCase(usecase.UploadMediaBatchDeps{
		Storage: storage,
		Source:  e2eSource{},
		Catalog: catalog,
	}, usecase.UploadMediaBatchConfig{}, log)

	camera := &fakeCamera{}
	sink := &recordingSink{}
	tickers := make(chan *manualTicker, 1)
	seq, err := NewSequencer(Config{SessionID: "e2e", LoadID: "42", LoadNumber: "LD-1001"}, Deps{
		Camera:      camera,
		Permissions: newFakePermissions(port.PermissionGranted, port.PermissionGranted),
		Uploader:    pipeline,
		Loads:       &fakeLoads{load: inProgress},
		Store:       &fakeStore{},
		Sink:        sink,
		NewTicker: func(time.Duration) Ticker {
			ticker := &manualTicker{ch: make(chan time.Time)}
			tickers <- ticker
			return ticker
		},
	}, log)
	if err != nil {
		t.Fatalf("NewSequencer() error = %v", err)
	}
	defer seq.Close()

	ctx := context.Background()
	if err := seq.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := seq.CapturePhoto(ctx); err != nil {
			t.Fatalf("CapturePhoto() error = %v", err)
		}
	}
	if err := seq.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	(<-tickers).tick(20)

	snap := waitForState(t, seq, StateDone)
	result := snap.Result
	if result.TotalCount != 3 || len(result.Successes) != 2 || len(result.Failures) != 1 || !result.OverallSuccess {
		t.Fatalf("unexpected result: total=%d ok=%d failed=%d overall=%v",
			result.TotalCount, len(result.Successes), len(result.Failures), result.OverallSuccess)
	}
	if failed := result.Failures[0]; failed.Artifact.StepIndex != 1 || !strings.Contains(failed.ErrorMessage, "network") {
		t.Fatalf("unexpected failure %+v", failed)
	}

	video := snap.Artifacts[2]
	if video.Duration() != 20 || video.IsMuted() {
		t.Fatalf("unexpected video artifact: duration=%d muted=%v", video.Duration(), video.IsMuted())
	}

	if len(catalog.records) != 2 {
		t.Fatalf("catalog must receive exactly 2 records, got %d", len(catalog.records))
	}
	for _, key := range storage.keys {
		if !strings.HasPrefix(key, "loads/LD-1001/") {
			t.Fatalf("unexpected key %q", key)
		}
	}

	progress := sink.ofType(EventProgress)
	if len(progress) != 3 || progress[2].Batch.Percent != 100 {
		t.Fatalf("expected 3 batch progress events ending at 100, got %d", len(progress))
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].Batch.Percent < progress[i-1].Batch.Percent {
			t.Fatalf("progress must be non-decreasing")
		}
	}
}
