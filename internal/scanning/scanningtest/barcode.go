// Package scanningtest renders real barcode images for tests.
package scanningtest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// EAN13 renders text as an EAN-13 barcode. It panics on invalid input.
func EAN13(text string) image.Image {
	m, err := oned.NewEAN13Writer().Encode(text, gozxing.BarcodeFormat_EAN_13, 400, 160, nil)
	if err != nil {
		panic(err)
	}
	return render(m)
}

// Code128 renders text as a Code 128 barcode. It panics on invalid input.
func Code128(text string) image.Image {
	m, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, 400, 160, nil)
	if err != nil {
		panic(err)
	}
	return render(m)
}

// QR renders text as a QR code. It panics on invalid input.
func QR(text string) image.Image {
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	if err != nil {
		panic(err)
	}
	return render(m)
}

// Blank returns a white image with nothing to decode.
func Blank() image.Image {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

// PNG encodes img as PNG bytes.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func render(m *gozxing.BitMatrix) image.Image {
	w, h := m.GetWidth(), m.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 0xff})
			}
		}
	}
	return img
}
