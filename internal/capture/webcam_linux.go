//go:build linux

package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/blackjack/webcam"
)

// V4L2 fourcc for Motion-JPEG
const pixelFormatMJPEG = webcam.PixelFormat('M' | 'J'<<8 | 'P'<<16 | 'G'<<24)

// frameWaitSeconds bounds each wait so cancellation is noticed
const frameWaitSeconds = 1

// WebcamConfig selects a V4L2 device and the requested frame size
type WebcamConfig struct {
	Device string
	Width  uint32
	Height uint32
	Logger *slog.Logger
}

type webcamSource struct {
	cam    *webcam.Webcam
	logger *slog.Logger
}

// OpenWebcam returns an Opener for a V4L2 camera streaming MJPEG
func OpenWebcam(cfg WebcamConfig) Opener {
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, &CameraAccessError{Device: cfg.Device, Err: err}
		}
		cam, err := webcam.Open(cfg.Device)
		if err != nil {
			return nil, &CameraAccessError{Device: cfg.Device, Err: err}
		}
		if err := configureWebcam(cam, cfg); err != nil {
			cam.Close()
			return nil, &CameraAccessError{Device: cfg.Device, Err: err}
		}
		cfg.Logger.Info("Opened camera", "device", cfg.Device)
		return &webcamSource{cam: cam, logger: cfg.Logger}, nil
	}
}

func configureWebcam(cam *webcam.Webcam, cfg WebcamConfig) error {
	if _, ok := cam.GetSupportedFormats()[pixelFormatMJPEG]; !ok {
		return errors.New("camera does not support MJPEG")
	}
	_, w, h, err := cam.SetImageFormat(pixelFormatMJPEG, cfg.Width, cfg.Height)
	if err != nil {
		return fmt.Errorf("setting image format: %w", err)
	}
	cfg.Logger.Debug("Camera format negotiated", "width", w, "height", h)
	if err := cam.StartStreaming(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	return nil
}

func (w *webcamSource) ReadFrame(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := w.cam.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("waiting for frame: %w", err)
		}

		buf, err := w.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("reading frame: %w", err)
		}
		if len(buf) == 0 {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(buf))
		if err != nil {
			// Cameras emit a few truncated frames while the sensor settles
			w.logger.Debug("Skipping corrupt frame", "error", err)
			continue
		}
		return img, nil
	}
}

func (w *webcamSource) Close() error {
	if err := w.cam.StopStreaming(); err != nil {
		w.logger.Debug("Stopping stream", "error", err)
	}
	return w.cam.Close()
}
