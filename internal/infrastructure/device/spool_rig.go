package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
	"github.com/google/uuid"
)

var (
	ErrRigClosed     = errors.New("capture device is closed")
	ErrMediaTooLarge = errors.New("media exceeds size limit")
	ErrEmptyMedia    = errors.New("media is empty")
	ErrFramePending  = errors.New("previous media was not consumed yet")
)

type SpoolConfig struct {
	Root     string
	MaxBytes int64
	Headroom *Headroom
}

// SpoolRig - камера удаленного клиента. Клиент присылает снятые байты, rig
// сохраняет их в spool-каталог сессии и отдает секвенсору как снятый файл.
// Разрешения камеры и микрофона сообщает сам клиент.
type SpoolRig struct {
	dir      string
	maxBytes int64
	headroom *Headroom

	photos chan port.CapturedFile
	videos chan port.CapturedFile
	done   chan struct{}

	mu          sync.Mutex
	closed      bool
	permissions map[port.Capability]port.PermissionStatus
}

func NewSpoolRig(sessionID string, cfg SpoolConfig) (*SpoolRig, error) {
	dir := filepath.Join(cfg.Root, sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	return &SpoolRig{
		dir:      dir,
		maxBytes: cfg.MaxBytes,
		headroom: cfg.Headroom,
		photos:   make(chan port.CapturedFile, 1),
		videos:   make(chan port.CapturedFile, 1),
		done:     make(chan struct{}),
		permissions: map[port.Capability]port.PermissionStatus{
			port.CapabilityCamera:     port.PermissionUndetermined,
			port.CapabilityMicrophone: port.PermissionUndetermined,
		},
	}, nil
}

// SetPermission сохраняет статус, сообщенный клиентом. Пустой статус игнорируется.
func (r *SpoolRig) SetPermission(capability port.Capability, status port.PermissionStatus) {
	if status == "" {
		return
	}
	r.mu.Lock()
	r.permissions[capability] = status
	r.mu.Unlock()
}

func (r *SpoolRig) Status(_ context.Context, capability port.Capability) (port.PermissionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permissions[capability], nil
}

// Request не может показать системный диалог на удаленном устройстве:
// возвращает последний статус от клиента, неопределенный считается отказом.
func (r *SpoolRig) Request(ctx context.Context, capability port.Capability) (port.PermissionStatus, error) {
	status, err := r.Status(ctx, capability)
	if err != nil {
		return "", err
	}
	if status == port.PermissionUndetermined {
		return port.PermissionDenied, nil
	}
	return status, nil
}

// Feed сохраняет присланный клиентом файл и передает его ожидающему действию.
func (r *SpoolRig) Feed(ctx context.Context, kind valueobject.MediaKind, body io.Reader) (port.CapturedFile, error) {
	if err := kind.Validate(); err != nil {
		return port.CapturedFile{}, err
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return port.CapturedFile{}, ErrRigClosed
	}
	if err := r.headroom.Check(ctx); err != nil {
		return port.CapturedFile{}, err
	}

	file, err := r.write(kind, body)
	if err != nil {
		return port.CapturedFile{}, err
	}

	select {
	case r.queue(kind) <- file:
		return file, nil
	default:
		r.remove(file)
		return port.CapturedFile{}, ErrFramePending
	}
}

// Discard удаляет файл, который никто не забрал: действие, ради которого
// он был прислан, завершилось ошибкой. Без этого очередь остается занятой
// и следующий Feed получает ErrFramePending.
func (r *SpoolRig) Discard(kind valueobject.MediaKind) bool {
	if kind.Validate() != nil {
		return false
	}
	select {
	case file := <-r.queue(kind):
		r.remove(file)
		return true
	default:
		return false
	}
}

func (r *SpoolRig) queue(kind valueobject.MediaKind) chan port.CapturedFile {
	if kind == valueobject.Video {
		return r.videos
	}
	return r.photos
}

func (r *SpoolRig) remove(file port.CapturedFile) {
	_ = os.Remove(filepath.Join(r.dir, filepath.Base(file.LocalURI)))
}

func (r *SpoolRig) write(kind valueobject.MediaKind, body io.Reader) (port.CapturedFile, error) {
	path := filepath.Join(r.dir, uuid.New().String()+"."+kind.Extension())
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return port.CapturedFile{}, fmt.Errorf("failed to create spool file: %w", err)
	}

	reader := body
	if r.maxBytes > 0 {
		reader = io.LimitReader(body, r.maxBytes+1)
	}
	written, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("failed to write spool file: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to write spool file: %w", closeErr)
	case r.maxBytes > 0 && written > r.maxBytes:
		err = fmt.Errorf("%w: more than %d bytes", ErrMediaTooLarge, r.maxBytes)
	case written == 0:
		err = ErrEmptyMedia
	}
	if err != nil {
		_ = os.Remove(path)
		return port.CapturedFile{}, err
	}

	return port.CapturedFile{
		LocalURI:   fileURI(path),
		SizeBytes:  written,
		CapturedAt: time.Now().UTC(),
	}, nil
}

func (r *SpoolRig) TakePhoto(ctx context.Context) (port.CapturedFile, error) {
	return r.await(ctx, r.photos)
}

// StartRecording ничего не пишет сам: лимит длительности соблюдает клиент,
// секвенсор останавливает запись по таймеру.
func (r *SpoolRig) StartRecording(_ context.Context, _ port.RecordOptions) (port.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRigClosed
	}
	return &spoolRecording{rig: r}, nil
}

func (r *SpoolRig) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

func (r *SpoolRig) await(ctx context.Context, queue <-chan port.CapturedFile) (port.CapturedFile, error) {
	select {
	case file := <-queue:
		return file, nil
	case <-r.done:
		return port.CapturedFile{}, ErrRigClosed
	case <-ctx.Done():
		return port.CapturedFile{}, ctx.Err()
	}
}

type spoolRecording struct {
	rig *SpoolRig
}

// Stop ждет, пока клиент пришлет записанное видео.
func (s *spoolRecording) Stop(ctx context.Context) (port.CapturedFile, error) {
	return s.rig.await(ctx, s.rig.videos)
}
