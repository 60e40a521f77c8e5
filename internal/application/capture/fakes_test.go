package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
	"github.com/dreschagin/securecam/pkg/logger"
)

type fakeCamera struct {
	mu        sync.Mutex
	photos    int
	photoErr  error
	block     chan struct{}
	recordErr error
	stopErr   error
	lastOpts  port.RecordOptions
}

func (c *fakeCamera) TakePhoto(ctx context.Context) (port.CapturedFile, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return port.CapturedFile{}, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.photoErr != nil {
		return port.CapturedFile{}, c.photoErr
	}
	c.photos++
	return port.CapturedFile{
		LocalURI:   fmt.Sprintf("file:///spool/photo-%d.jpg", c.photos),
		SizeBytes:  1024,
		CapturedAt: time.Date(2026, 2, 7, 12, 0, c.photos, 0, time.UTC),
	}, nil
}

func (c *fakeCamera) StartRecording(_ context.Context, opts port.RecordOptions) (port.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOpts = opts
	if c.recordErr != nil {
		return nil, c.recordErr
	}
	return &fakeRecording{err: c.stopErr}, nil
}

type fakeRecording struct {
	err error
}

func (r *fakeRecording) Stop(context.Context) (port.CapturedFile, error) {
	if r.err != nil {
		return port.CapturedFile{}, r.err
	}
	return port.CapturedFile{
		LocalURI:   "file:///spool/video.mp4",
		SizeBytes:  4096,
		CapturedAt: time.Date(2026, 2, 7, 12, 1, 0, 0, time.UTC),
	}, nil
}

type fakePermissions struct {
	mu       sync.Mutex
	status   map[port.Capability]port.PermissionStatus
	onAsk    map[port.Capability]port.PermissionStatus
	requests map[port.Capability]int
}

func newFakePermissions(camera, microphone port.PermissionStatus) *fakePermissions {
	return &fakePermissions{
		status: map[port.Capability]port.PermissionStatus{
			port.CapabilityCamera:     camera,
			port.CapabilityMicrophone: microphone,
		},
		onAsk:    map[port.Capability]port.PermissionStatus{},
		requests: map[port.Capability]int{},
	}
}

func (p *fakePermissions) Status(_ context.Context, capability port.Capability) (port.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[capability], nil
}

func (p *fakePermissions) Request(_ context.Context, capability port.Capability) (port.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests[capability]++
	if answer, ok := p.onAsk[capability]; ok {
		p.status[capability] = answer
	} else if p.status[capability] == port.PermissionUndetermined {
		p.status[capability] = port.PermissionGranted
	}
	return p.status[capability], nil
}

type fakeUploader struct {
	mu      sync.Mutex
	calls   []usecase.UploadMediaBatchCommand
	failAt  map[int]bool // step index -> fail
	failAll error
}

func (u *fakeUploader) Execute(_ context.Context, cmd usecase.UploadMediaBatchCommand, observer port.ProgressObserver) (*entity.BatchResult, error) {
	u.mu.Lock()
	u.calls = append(u.calls, cmd)
	failAt := u.failAt
	u.failAt = nil
	u.mu.Unlock()

	if u.failAll != nil {
		return nil, u.failAll
	}

	var successes, failures []entity.UploadOutcome
	for i, artifact := range cmd.Artifacts {
		if failAt[artifact.StepIndex] {
			failures = append(failures, entity.UploadOutcome{Artifact: artifact, ErrorMessage: "network error"})
		} else {
			successes = append(successes, entity.UploadOutcome{Artifact: artifact, Success: true, RemoteKey: fmt.Sprintf("k%d", artifact.StepIndex)})
		}
		observer.OnBatchProgress(port.BatchProgress{Percent: 100 * (i + 1) / len(cmd.Artifacts), Completed: i + 1, Total: len(cmd.Artifacts)})
	}
	return entity.NewBatchResult(len(cmd.Artifacts), successes, failures), nil
}

func (u *fakeUploader) lastCall() usecase.UploadMediaBatchCommand {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[len(u.calls)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	appended []entity.MediaArtifact
	err      error
}

func (s *fakeStore) Append(_ context.Context, artifact entity.MediaArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, artifact)
	return s.err
}
func (s *fakeStore) ListAll(context.Context) ([]port.StoredMedia, error) { return nil, nil }
func (s *fakeStore) Remove(context.Context, string) error                { return nil }
func (s *fakeStore) Clear(context.Context) error                         { return nil }
func (s *fakeStore) MarkUploaded(context.Context, string, port.RemoteInfo) error {
	return nil
}
func (s *fakeStore) UploadStatus(context.Context) (port.UploadStatus, error) {
	return port.UploadStatus{}, nil
}

type fakeLoads struct {
	load *entity.LoadSnapshot
	err  error
}

func (l *fakeLoads) FetchLoads(context.Context) ([]entity.LoadSnapshot, error) { return nil, nil }
func (l *fakeLoads) GetLoadByID(context.Context, string) (*entity.LoadSnapshot, error) {
	return l.load, l.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(eventType EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0)
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

// tick отправляет n тиков; каждая отправка ждет, пока горутина записи ее примет.
func (m *manualTicker) tick(n int) {
	for i := 0; i < n; i++ {
		m.ch <- time.Now()
	}
}

type harness struct {
	camera   *fakeCamera
	perms    *fakePermissions
	uploader *fakeUploader
	store    *fakeStore
	sink     *recordingSink
	tickers  chan *manualTicker
	seq      *Sequencer
}

func newHarness(t *testing.T, perms *fakePermissions, loads port.LoadRegistry) *harness {
	t.Helper()

	h := &harness{
		camera:   &fakeCamera{},
		perms:    perms,
		uploader: &fakeUploader{},
		store:    &fakeStore{},
		sink:     &recordingSink{},
		tickers:  make(chan *manualTicker, 4),
	}
	seq, err := NewSequencer(Config{
		SessionID:  "s-1",
		LoadID:     "42",
		LoadNumber: "LD-1001",
	}, Deps{
		Camera:      h.camera,
		Permissions: h.perms,
		Uploader:    h.uploader,
		Loads:       loads,
		Store:       h.store,
		Sink:        h.sink,
		NewTicker: func(time.Duration) Ticker {
			ticker := &manualTicker{ch: make(chan time.Time)}
			h.tickers <- ticker
			return ticker
		},
	}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewSequencer() error = %v", err)
	}
	t.Cleanup(seq.Close)
	h.seq = seq
	return h
}

func (h *harness) mustStart(t *testing.T) {
	t.Helper()
	if err := h.seq.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func (h *harness) mustPhoto(t *testing.T) entity.MediaArtifact {
	t.Helper()
	artifact, err := h.seq.CapturePhoto(context.Background())
	if err != nil {
		t.Fatalf("CapturePhoto() error = %v", err)
	}
	return artifact
}

func (h *harness) startRecording(t *testing.T) *manualTicker {
	t.Helper()
	if err := h.seq.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	return <-h.tickers
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForState(t *testing.T, seq *Sequencer, state State) Snapshot {
	t.Helper()
	var snapshot Snapshot
	waitFor(t, string(state), func() bool {
		snapshot = seq.Snapshot()
		return snapshot.State == state
	})
	return snapshot
}

var (
	errDevice  = errors.New("camera busy")
	completed  = &entity.LoadSnapshot{ID: "42", LoadNumber: "LD-1001", Completion: valueobject.Completed}
	inProgress = &entity.LoadSnapshot{ID: "42", LoadNumber: "LD-1001", Completion: valueobject.NotCompleted}
)
