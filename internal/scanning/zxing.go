package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZXing implements the Decoder interface with the gozxing readers.
// Retail formats (EAN, UPC) are tried first, then the other linear formats, then QR.
type ZXing struct {
	mu      sync.Mutex
	hints   map[gozxing.DecodeHintType]interface{}
	readers []gozxing.Reader
}

// NewZXing creates a new ZXing Decoder instance
func NewZXing() *ZXing {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &ZXing{
		hints: hints,
		readers: []gozxing.Reader{
			oned.NewMultiFormatUPCEANReader(hints),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
			oned.NewITFReader(),
			oned.NewCodaBarReader(),
			qrcode.NewQRCodeReader(),
		},
	}
}

// Decode reads a symbol from a single frame or still image
func (z *ZXing) Decode(ctx context.Context, img image.Image) (Symbol, error) {
	if img == nil {
		return Symbol{}, ErrNotFound
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Symbol{}, fmt.Errorf("binarizing image: %w", err)
	}

	// gozxing readers keep per-call state
	z.mu.Lock()
	defer z.mu.Unlock()

	for _, reader := range z.readers {
		if err := ctx.Err(); err != nil {
			return Symbol{}, err
		}
		result, err := reader.Decode(bmp, z.hints)
		reader.Reset()
		if err != nil {
			// Not-found, checksum and format failures all mean "nothing usable in this frame"
			var readerErr gozxing.ReaderException
			if errors.As(err, &readerErr) {
				continue
			}
			return Symbol{}, fmt.Errorf("decoding symbol: %w", err)
		}
		return Symbol{
			Text:   result.GetText(),
			Format: result.GetBarcodeFormat().String(),
		}, nil
	}
	return Symbol{}, ErrNotFound
}

// Close is a no-op for the in-process decoder
func (z *ZXing) Close() error {
	return nil
}
