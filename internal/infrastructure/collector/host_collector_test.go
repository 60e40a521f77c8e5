package collector

import (
	"context"
	"testing"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/pkg/logger"
)

type captureSink struct {
	stats []HostStats
}

func (s *captureSink) ObserveHost(stats HostStats) {
	s.stats = append(s.stats, stats)
}

type capturePublisher struct {
	data []port.MetricDatum
}

func (p *capturePublisher) PublishBatch(_ context.Context, data []port.MetricDatum) error {
	p.data = append(p.data, data...)
	return nil
}

func (p *capturePublisher) Flush(context.Context) error { return nil }

func TestHostCollector_Collect(t *testing.T) {
	c := NewHostCollector(t.TempDir())
	fixed := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	stats, err := c.Collect(context.Background())
	if err != nil {
		t.Logf("partial host stats: %v", err)
	}
	if !stats.CollectedAt.Equal(fixed) {
		t.Fatalf("CollectedAt = %s", stats.CollectedAt)
	}
	if stats.SpoolFreeBytes == 0 {
		t.Fatalf("expected free bytes for temp dir, got %+v", stats)
	}
	if stats.SpoolUsedPercent < 0 || stats.SpoolUsedPercent > 100 {
		t.Fatalf("used percent out of range: %f", stats.SpoolUsedPercent)
	}
}

func TestHostStats_Datums(t *testing.T) {
	stats := HostStats{CPUPercent: 12.5, MemoryPercent: 40, SpoolUsedPercent: 70, SpoolFreeBytes: 1024}
	data := stats.Datums(map[string]string{"Service": "securecam"})

	if len(data) != 4 {
		t.Fatalf("expected 4 datums, got %d", len(data))
	}
	if data[3].Name != "SpoolFreeBytes" || data[3].Unit != port.UnitBytes || data[3].Value != 1024 {
		t.Fatalf("unexpected free bytes datum %+v", data[3])
	}
	for _, d := range data {
		if d.Dimensions["Service"] != "securecam" {
			t.Fatalf("dimension missing on %s", d.Name)
		}
	}
}

func TestHostCollector_CollectOnceFansOut(t *testing.T) {
	c := NewHostCollector(t.TempDir())
	sink := &captureSink{}
	publisher := &capturePublisher{}

	c.collectOnce(context.Background(), publisher, logger.New("error"), []HostSink{sink})

	if len(sink.stats) != 1 {
		t.Fatalf("sink must receive one snapshot, got %d", len(sink.stats))
	}
	if len(publisher.data) != 4 {
		t.Fatalf("publisher must receive 4 datums, got %d", len(publisher.data))
	}
}
