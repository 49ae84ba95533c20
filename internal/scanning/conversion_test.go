package scanning

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/barcode-scanner/internal/scanning/scanningtest"
)

var _ = Describe("DecodeUpload", func() {
	When("uploading a PNG", func() {
		It("should return an image with the original bounds", func() {
			src := scanningtest.EAN13("0123456789012")
			img, err := DecodeUpload(scanningtest.PNG(src), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds()).To(Equal(src.Bounds()))
		})
	})

	When("uploading a JPEG with a parameterized content type", func() {
		It("should decode the image", func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, scanningtest.Blank(), nil)).To(Succeed())
			img, err := DecodeUpload(buf.Bytes(), "Image/JPEG; charset=binary")
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(200))
		})
	})

	When("the content type is missing", func() {
		It("should sniff the format from the data", func() {
			img, err := DecodeUpload(scanningtest.PNG(scanningtest.Blank()), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(img).NotTo(BeNil())
		})
	})

	When("the upload is empty", func() {
		It("should return a DecodeError", func() {
			_, err := DecodeUpload(nil, "image/png")
			var decodeErr *DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.Error()).To(ContainSubstring("empty upload"))
		})
	})

	When("the upload is not an image", func() {
		It("should return a DecodeError naming the supported formats", func() {
			_, err := DecodeUpload([]byte("definitely not an image"), "image/png")
			var decodeErr *DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.ContentType).To(Equal("image/png"))
			Expect(err.Error()).To(ContainSubstring("Supported formats"))
		})

		It("should not be mistaken for a missing symbol", func() {
			_, err := DecodeUpload([]byte("definitely not an image"), "image/png")
			Expect(errors.Is(err, ErrNotFound)).To(BeFalse())
		})
	})

	When("the upload claims to be HEIC but is corrupt", func() {
		It("should return a DecodeError from the HEIC decoder", func() {
			_, err := DecodeUpload([]byte("garbage-heic-bytes"), "image/heic")
			var decodeErr *DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("HEIC"))
		})
	})
})

var _ = Describe("HEIC detection", func() {
	It("should detect the ftyp heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should reject short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})

	It("should reject other ftyp brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypisom0000")...)
		Expect(isHEICFormat(data)).To(BeFalse())
	})

	It("should detect HEIC MIME types", func() {
		Expect(isHEICMimeType(" image/HEIF ")).To(BeTrue())
		Expect(isHEICMimeType("image/png")).To(BeFalse())
	})
})

var _ = Describe("encodePNG", func() {
	It("should round-trip through the standard decoder", func() {
		data, err := encodePNG(scanningtest.Blank())
		Expect(err).NotTo(HaveOccurred())
		_, format, err := image.Decode(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})
})
