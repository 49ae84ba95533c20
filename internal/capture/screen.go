package capture

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/vova616/screenshot"
)

// ScreenConfig selects a screen region to scan, for barcodes shown on a display
type ScreenConfig struct {
	// Region is the area to grab; empty means the whole screen
	Region   image.Rectangle
	Interval time.Duration
}

type screenSource struct {
	region image.Rectangle
	ticker *time.Ticker
	grab   func(image.Rectangle) (*image.RGBA, error)
}

// OpenScreen returns an Opener that grabs the screen at a fixed interval
func OpenScreen(cfg ScreenConfig) Opener {
	return openScreen(cfg, screenshot.ScreenRect, screenshot.CaptureRect)
}

func openScreen(cfg ScreenConfig, bounds func() (image.Rectangle, error), grab func(image.Rectangle) (*image.RGBA, error)) Opener {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	return func(ctx context.Context) (Source, error) {
		screen, err := bounds()
		if err != nil {
			return nil, &CameraAccessError{Device: "screen", Err: err}
		}
		region := screen
		if !cfg.Region.Empty() {
			region = cfg.Region.Intersect(screen)
			if region.Empty() {
				return nil, &CameraAccessError{Device: "screen", Err: fmt.Errorf("region %v is outside the screen %v", cfg.Region, screen)}
			}
		}
		return &screenSource{region: region, ticker: time.NewTicker(cfg.Interval), grab: grab}, nil
	}
}

func (s *screenSource) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}
	img, err := s.grab(s.region)
	if err != nil {
		return nil, fmt.Errorf("grabbing screen: %w", err)
	}
	return img, nil
}

func (s *screenSource) Close() error {
	s.ticker.Stop()
	return nil
}

// ParseRegion parses "x,y,w,h" into a rectangle. An empty string is the zero rectangle.
func ParseRegion(s string) (image.Rectangle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("region must be x,y,w,h: %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("parsing region %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("region width and height must be positive: %q", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}
