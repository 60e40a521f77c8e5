package port

import (
	"context"
	"time"
)

// MetricUnit is the unit of a published datum.
type MetricUnit string

const (
	UnitCount        MetricUnit = "Count"
	UnitMilliseconds MetricUnit = "Milliseconds"
	UnitBytes        MetricUnit = "Bytes"
	UnitPercent      MetricUnit = "Percent"
)

// MetricDatum is one data point of an upload or capture metric.
type MetricDatum struct {
	Name       string
	Value      float64
	Unit       MetricUnit
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsPublisher defines the interface for publishing metrics to external observability platforms.
type MetricsPublisher interface {
	// PublishBatch publishes multiple data points in a single operation.
	// Implementations handle batching constraints (CloudWatch accepts 1000 per request).
	PublishBatch(ctx context.Context, data []MetricDatum) error

	// Flush forces immediate publication of any buffered data.
	Flush(ctx context.Context) error
}
