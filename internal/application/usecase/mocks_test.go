package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/entity"
)

type putCall struct {
	key         string
	contentType string
	size        int64
	stream      bool
}

type mockObjectStorage struct {
	mu          sync.Mutex
	headErr     error
	headCalls   int
	calls       []putCall
	errAt       map[string]error
	failAll     error
	blockOnKey  string
	objects     []port.StoredObject
	signedTTLs  []time.Duration
	deleted     []string
	deleteBatch [][]string
}

func (m *mockObjectStorage) HeadBucket(context.Context) error {
	m.headCalls++
	return m.headErr
}

func (m *mockObjectStorage) PutObject(ctx context.Context, key, contentType string, body []byte, progress port.ProgressFunc) (port.PutObjectResult, error) {
	return m.put(ctx, putCall{key: key, contentType: contentType, size: int64(len(body))}, progress)
}

func (m *mockObjectStorage) PutObjectStream(ctx context.Context, key, contentType string, body io.Reader, size int64, progress port.ProgressFunc) (port.PutObjectResult, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return port.PutObjectResult{}, err
	}
	return m.put(ctx, putCall{key: key, contentType: contentType, size: size, stream: true}, progress)
}

func (m *mockObjectStorage) put(ctx context.Context, call putCall, progress port.ProgressFunc) (port.PutObjectResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if m.blockOnKey != "" && strings.Contains(call.key, m.blockOnKey) {
		<-ctx.Done()
		return port.PutObjectResult{}, ctx.Err()
	}
	if m.failAll != nil {
		return port.PutObjectResult{}, m.failAll
	}
	for marker, err := range m.errAt {
		if strings.Contains(call.key, marker) {
			return port.PutObjectResult{}, err
		}
	}

	if progress != nil {
		progress(50)
		progress(100)
	}
	return port.PutObjectResult{
		Key:      call.key,
		Location: "https://bucket.example.com/" + call.key,
		ETag:     "etag-" + call.key,
	}, nil
}

func (m *mockObjectStorage) ListObjects(_ context.Context, prefix string) ([]port.StoredObject, error) {
	out := make([]port.StoredObject, 0, len(m.objects))
	for _, object := range m.objects {
		if strings.HasPrefix(object.Key, prefix) {
			out = append(out, object)
		}
	}
	return out, nil
}

func (m *mockObjectStorage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.signedTTLs = append(m.signedTTLs, ttl)
	return "https://signed.example.com/" + key, nil
}

func (m *mockObjectStorage) DeleteObject(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockObjectStorage) DeleteObjects(_ context.Context, keys []string) error {
	m.deleteBatch = append(m.deleteBatch, keys)
	return nil
}

type mockMediaSource struct {
	files map[string][]byte
}

func (m *mockMediaSource) Open(_ context.Context, localURI string) (io.ReadCloser, int64, error) {
	data, ok := m.files[localURI]
	if !ok {
		return nil, 0, errors.New("file does not exist")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

type mockCatalog struct {
	records []port.CatalogRecord
	err     error
}

func (m *mockCatalog) PutBatch(_ context.Context, records []port.CatalogRecord) error {
	m.records = append(m.records, records...)
	return m.err
}

type mockMediaStore struct {
	marked map[string]port.RemoteInfo
}

func (m *mockMediaStore) Append(context.Context, entity.MediaArtifact) error  { return nil }
func (m *mockMediaStore) ListAll(context.Context) ([]port.StoredMedia, error) { return nil, nil }
func (m *mockMediaStore) Remove(context.Context, string) error                { return nil }
func (m *mockMediaStore) Clear(context.Context) error                         { return nil }
func (m *mockMediaStore) UploadStatus(context.Context) (port.UploadStatus, error) {
	return port.UploadStatus{}, nil
}

func (m *mockMediaStore) MarkUploaded(_ context.Context, id string, info port.RemoteInfo) error {
	if m.marked == nil {
		m.marked = make(map[string]port.RemoteInfo)
	}
	m.marked[id] = info
	return nil
}

type mockEventPublisher struct {
	subjects []string
	events   []any
}

func (m *mockEventPublisher) PublishEvent(_ context.Context, subject string, event any) error {
	m.subjects = append(m.subjects, subject)
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventPublisher) Close() error { return nil }

type recordingObserver struct {
	items   []port.ItemProgress
	batches []port.BatchProgress
}

func (o *recordingObserver) OnItemProgress(p port.ItemProgress)   { o.items = append(o.items, p) }
func (o *recordingObserver) OnBatchProgress(p port.BatchProgress) { o.batches = append(o.batches, p) }
