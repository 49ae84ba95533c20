package scanning

import (
	"context"
	"errors"
	"image"
)

// ErrNotFound is returned when an image contains no readable symbol.
// During live scanning it is ordinary polling noise.
var ErrNotFound = errors.New("no symbol found")

// Symbol is the decoded payload of a barcode
type Symbol struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}

// DecodeError reports input that could not be turned into an image at all
type DecodeError struct {
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return "decoding " + e.ContentType + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder defines the interface for symbol decoding operations
type Decoder interface {
	// Decode reads one symbol from img, returning ErrNotFound when none is present
	Decode(ctx context.Context, img image.Image) (Symbol, error)
	// Close closes the decoder and releases resources
	Close() error
}
