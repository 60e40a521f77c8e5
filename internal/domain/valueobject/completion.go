package valueobject

import (
	"encoding/json"
)

// Completion is the decoded form of a load's raw status field.
type Completion string

const (
	NotCompleted Completion = "not_completed"
	Completed    Completion = "completed"
	Unknown      Completion = "unknown"
)

type rawStatus struct {
	Data []int `json:"data"`
}

// ParseCompletion decodes the backend status shape {"data":[0|1,...]}.
// Anything else yields Unknown.
func ParseCompletion(raw json.RawMessage) Completion {
	if len(raw) == 0 {
		return Unknown
	}

	var status rawStatus
	if err := json.Unmarshal(raw, &status); err != nil || len(status.Data) == 0 {
		return Unknown
	}

	switch status.Data[0] {
	case 0:
		return NotCompleted
	case 1:
		return Completed
	default:
		return Unknown
	}
}

// BlocksCapture reports whether a new capture session must be refused.
// Unknown is gated like NotCompleted.
func (c Completion) BlocksCapture() bool {
	return c == Completed
}

func (c Completion) String() string {
	return string(c)
}
