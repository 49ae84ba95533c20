//go:build !linux

package capture

import (
	"context"
	"errors"
	"log/slog"
)

// WebcamConfig selects a V4L2 device and the requested frame size
type WebcamConfig struct {
	Device string
	Width  uint32
	Height uint32
	Logger *slog.Logger
}

// OpenWebcam is only available on Linux; on other platforms every open fails
func OpenWebcam(cfg WebcamConfig) Opener {
	return func(ctx context.Context) (Source, error) {
		return nil, &CameraAccessError{Device: cfg.Device, Err: errors.New("V4L2 cameras are only supported on linux")}
	}
}
