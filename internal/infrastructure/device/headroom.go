package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned when the spool volume is below the configured headroom.
var ErrInsufficientSpace = errors.New("insufficient free space in spool")

// Headroom проверяет свободное место на разделе spool-каталога
type Headroom struct {
	path         string
	minFreeBytes uint64
}

func NewHeadroom(path string, minFreeBytes uint64) *Headroom {
	return &Headroom{path: path, minFreeBytes: minFreeBytes}
}

// Usage возвращает состояние раздела, на котором лежит spool.
func (h *Headroom) Usage(ctx context.Context) (*disk.UsageStat, error) {
	usage, err := disk.UsageWithContext(ctx, h.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", h.path, err)
	}
	return usage, nil
}

// Check возвращает ErrInsufficientSpace, если свободного места меньше порога.
func (h *Headroom) Check(ctx context.Context) error {
	if h == nil || h.minFreeBytes == 0 {
		return nil
	}
	usage, err := h.Usage(ctx)
	if err != nil {
		return err
	}
	if usage.Free < h.minFreeBytes {
		return fmt.Errorf("%w: %d bytes free, %d required", ErrInsufficientSpace, usage.Free, h.minFreeBytes)
	}
	return nil
}
