package capture

import (
	"context"
	"image"
	"time"

	"github.com/zombor/barcode-scanner/internal/scanning"
)

// Source is an acquired live video device. Close releases the device.
type Source interface {
	// ReadFrame blocks until the next frame is available or ctx is done
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener acquires a Source. Failures should be reported as *CameraAccessError.
type Opener func(ctx context.Context) (Source, error)

// CameraAccessError means the device is unavailable or permission was denied
type CameraAccessError struct {
	Device string
	Err    error
}

func (e *CameraAccessError) Error() string {
	if e.Device == "" {
		return "accessing camera: " + e.Err.Error()
	}
	return "accessing camera " + e.Device + ": " + e.Err.Error()
}

func (e *CameraAccessError) Unwrap() error {
	return e.Err
}

// Result is one report from the decode loop: either a Symbol or a fatal Err
type Result struct {
	Symbol scanning.Symbol
	At     time.Time
	Err    error
}

// FrameSnapshot is the most recent frame seen by the decode loop
type FrameSnapshot struct {
	Image      image.Image
	CapturedAt time.Time
	Sequence   uint64
}

// Stats summarizes decode loop activity since the session was created
type Stats struct {
	Frames   uint64
	NotFound uint64
	Symbols  uint64
	Dropped  uint64
}
