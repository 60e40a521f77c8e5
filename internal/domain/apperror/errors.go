// Package apperror holds the error taxonomy shared by the capture and upload flows.
package apperror

import "errors"

var (
	// ErrPermissionDenied: a required device capability was not granted.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCaptureFailure: the device failed to produce a photo or video.
	ErrCaptureFailure = errors.New("capture failed")
	// ErrLoadAlreadyCompleted: the load is completed and cannot take new media.
	ErrLoadAlreadyCompleted = errors.New("load already completed")
	// ErrBatchTotalFailure: every item of an upload batch failed.
	ErrBatchTotalFailure = errors.New("all uploads failed")
	// ErrStorageNotConfigured: object storage is unreachable or misconfigured.
	ErrStorageNotConfigured = errors.New("object storage is not configured")
	// ErrInvalidState: the requested action is not allowed in the current state.
	ErrInvalidState    = errors.New("invalid state for action")
	ErrSessionNotFound = errors.New("session not found")
	ErrLoadNotFound    = errors.New("load not found")
	ErrMediaNotFound   = errors.New("media not found")
)
