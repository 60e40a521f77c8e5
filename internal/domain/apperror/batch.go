package apperror

import (
	"strings"

	"github.com/dreschagin/securecam/internal/domain/entity"
)

// BatchFailureError is returned when no item of a non-empty batch was uploaded.
// It carries the result so callers can still inspect every failed outcome.
type BatchFailureError struct {
	Result *entity.BatchResult
}

func (e *BatchFailureError) Error() string {
	messages := e.Messages()
	if len(messages) == 0 {
		return ErrBatchTotalFailure.Error()
	}
	return ErrBatchTotalFailure.Error() + ": " + strings.Join(messages, ", ")
}

func (e *BatchFailureError) Unwrap() error {
	return ErrBatchTotalFailure
}

// Messages returns the per-item error messages in batch order.
func (e *BatchFailureError) Messages() []string {
	if e == nil || e.Result == nil {
		return nil
	}
	messages := make([]string, 0, len(e.Result.Failures))
	for _, failure := range e.Result.Failures {
		messages = append(messages, failure.ErrorMessage)
	}
	return messages
}
