package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskCollector собирает заполненность раздела со спулом медиа
type DiskCollector struct {
	path string
}

// NewDiskCollector создает новый Disk collector для раздела, содержащего path
func NewDiskCollector(path string) *DiskCollector {
	if path == "" {
		path = "/"
	}
	return &DiskCollector{path: path}
}

// Collect возвращает процент занятого места и свободные байты
func (c *DiskCollector) Collect(ctx context.Context) (float64, uint64, error) {
	usage, err := disk.UsageWithContext(ctx, c.path)
	if err != nil {
		return 0, 0, err
	}
	return usage.UsedPercent, usage.Free, nil
}
