package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUCollector собирает загрузку CPU
type CPUCollector struct {
	// окно измерения; 0 - с момента предыдущего вызова, без блокировки
	window time.Duration
}

// NewCPUCollector создает новый CPU collector
func NewCPUCollector(window time.Duration) *CPUCollector {
	return &CPUCollector{window: window}
}

// Collect возвращает процент загрузки и число логических ядер
func (c *CPUCollector) Collect(ctx context.Context) (float64, int, error) {
	percentages, err := cpu.PercentWithContext(ctx, c.window, false)
	if err != nil {
		return 0, 0, err
	}

	cores, _ := cpu.CountsWithContext(ctx, true)

	if len(percentages) == 0 {
		return 0, cores, nil
	}
	return percentages[0], cores, nil
}
