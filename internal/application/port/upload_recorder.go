package port

import "time"

// UploadRecorder records upload counters for scraping (Prometheus).
type UploadRecorder interface {
	ObserveItem(kind string, success bool, sizeBytes int64, duration time.Duration)
	// ObserveBatch records a finished batch; outcome is "success", "partial", "failure" or "empty".
	ObserveBatch(outcome string)
}
