package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/pkg/logger"
)

// HostStats - снимок состояния хоста, на котором принимаются медиа.
type HostStats struct {
	CPUPercent       float64
	CPUCores         int
	MemoryPercent    float64
	SpoolPath        string
	SpoolUsedPercent float64
	SpoolFreeBytes   uint64
	CollectedAt      time.Time
}

// HostSink получает каждый снимок (Prometheus gauges).
type HostSink interface {
	ObserveHost(stats HostStats)
}

// HostCollector собирает CPU, память и диск спула.
type HostCollector struct {
	cpuCollector    *CPUCollector
	memoryCollector *MemoryCollector
	diskCollector   *DiskCollector
	spoolPath       string
	now             func() time.Time
}

// NewHostCollector создает collector; spoolPath - каталог спула медиа
func NewHostCollector(spoolPath string) *HostCollector {
	return &HostCollector{
		cpuCollector:    NewCPUCollector(0),
		memoryCollector: NewMemoryCollector(),
		diskCollector:   NewDiskCollector(spoolPath),
		spoolPath:       spoolPath,
		now:             time.Now,
	}
}

// Collect собирает все метрики параллельно. Частичный результат возвращается
// вместе с объединенной ошибкой.
func (c *HostCollector) Collect(ctx context.Context) (HostStats, error) {
	stats := HostStats{SpoolPath: c.spoolPath}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(name string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		percent, cores, err := c.cpuCollector.Collect(ctx)
		if err != nil {
			fail("cpu", err)
			return
		}
		mu.Lock()
		stats.CPUPercent, stats.CPUCores = percent, cores
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		percent, err := c.memoryCollector.Collect(ctx)
		if err != nil {
			fail("memory", err)
			return
		}
		mu.Lock()
		stats.MemoryPercent = percent
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		percent, free, err := c.diskCollector.Collect(ctx)
		if err != nil {
			fail("disk", err)
			return
		}
		mu.Lock()
		stats.SpoolUsedPercent, stats.SpoolFreeBytes = percent, free
		mu.Unlock()
	}()
	wg.Wait()

	stats.CollectedAt = c.now().UTC()
	return stats, errors.Join(errs...)
}

// Datums переводит снимок в точки для внешнего publisher (CloudWatch).
func (s HostStats) Datums(dimensions map[string]string) []port.MetricDatum {
	return []port.MetricDatum{
		{Name: "HostCPUUsage", Value: s.CPUPercent, Unit: port.UnitPercent, Dimensions: dimensions, Timestamp: s.CollectedAt},
		{Name: "HostMemoryUsage", Value: s.MemoryPercent, Unit: port.UnitPercent, Dimensions: dimensions, Timestamp: s.CollectedAt},
		{Name: "SpoolDiskUsage", Value: s.SpoolUsedPercent, Unit: port.UnitPercent, Dimensions: dimensions, Timestamp: s.CollectedAt},
		{Name: "SpoolFreeBytes", Value: float64(s.SpoolFreeBytes), Unit: port.UnitBytes, Dimensions: dimensions, Timestamp: s.CollectedAt},
	}
}

// Run собирает снимки с интервалом до отмены ctx. publisher может быть nil.
func (c *HostCollector) Run(ctx context.Context, interval time.Duration, publisher port.MetricsPublisher, log *logger.Logger, sinks ...HostSink) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce(ctx, publisher, log, sinks)
		}
	}
}

func (c *HostCollector) collectOnce(ctx context.Context, publisher port.MetricsPublisher, log *logger.Logger, sinks []HostSink) {
	stats, err := c.Collect(ctx)
	if err != nil {
		log.Warn("Host metrics collection incomplete", "error", err.Error())
	}

	for _, sink := range sinks {
		sink.ObserveHost(stats)
	}

	if publisher != nil {
		if err := publisher.PublishBatch(ctx, stats.Datums(nil)); err != nil {
			log.Warn("Failed to publish host metrics", "error", err.Error())
		}
	}
}
