package entity

// UploadOutcome is the result of one artifact's upload attempt.
type UploadOutcome struct {
	Artifact       MediaArtifact
	Success        bool
	RemoteKey      string
	RemoteLocation string
	Checksum       string
	ErrorMessage   string
}

// BatchResult aggregates the outcomes of one upload invocation.
// OverallSuccess is true when at least one artifact was uploaded.
type BatchResult struct {
	TotalCount     int
	Successes      []UploadOutcome
	Failures       []UploadOutcome
	OverallSuccess bool
}

// NewBatchResult builds a result and derives OverallSuccess.
func NewBatchResult(total int, successes, failures []UploadOutcome) *BatchResult {
	if successes == nil {
		successes = []UploadOutcome{}
	}
	if failures == nil {
		failures = []UploadOutcome{}
	}
	return &BatchResult{
		TotalCount:     total,
		Successes:      successes,
		Failures:       failures,
		OverallSuccess: len(successes) > 0,
	}
}

// Partial reports a success that still carries failed items.
func (r *BatchResult) Partial() bool {
	return r != nil && r.OverallSuccess && len(r.Failures) > 0
}

// FailedArtifacts returns the artifacts that were not uploaded, in batch order.
func (r *BatchResult) FailedArtifacts() []MediaArtifact {
	if r == nil {
		return nil
	}
	artifacts := make([]MediaArtifact, 0, len(r.Failures))
	for _, failure := range r.Failures {
		artifacts = append(artifacts, failure.Artifact)
	}
	return artifacts
}
