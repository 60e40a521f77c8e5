package port

import (
	"context"
	"time"
)

// CapturedFile is a file written by the camera.
type CapturedFile struct {
	LocalURI   string
	SizeBytes  int64
	CapturedAt time.Time
}

// RecordOptions configures a video recording.
type RecordOptions struct {
	MaxDuration time.Duration
	Mute        bool
}

// Camera is the capture device.
type Camera interface {
	TakePhoto(ctx context.Context) (CapturedFile, error)
	StartRecording(ctx context.Context, opts RecordOptions) (Recording, error)
}

// Recording is an in-progress video recording.
type Recording interface {
	// Stop finishes the recording and returns the written file.
	Stop(ctx context.Context) (CapturedFile, error)
}

// PermissionStatus is the state of a device permission.
type PermissionStatus string

const (
	PermissionUndetermined PermissionStatus = "undetermined"
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
)

// Capability names a device permission.
type Capability string

const (
	CapabilityCamera     Capability = "camera"
	CapabilityMicrophone Capability = "microphone"
)

// PermissionGate reads and requests device permissions.
type PermissionGate interface {
	Status(ctx context.Context, capability Capability) (PermissionStatus, error)
	Request(ctx context.Context, capability Capability) (PermissionStatus, error)
}
