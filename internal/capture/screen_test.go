package capture

import (
	"context"
	"errors"
	"image"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("screen source", func() {
	var (
		screen  image.Rectangle
		grabbed []image.Rectangle
		grab    func(image.Rectangle) (*image.RGBA, error)
		bounds  func() (image.Rectangle, error)
	)

	BeforeEach(func() {
		screen = image.Rect(0, 0, 1920, 1080)
		grabbed = nil
		bounds = func() (image.Rectangle, error) { return screen, nil }
		grab = func(r image.Rectangle) (*image.RGBA, error) {
			grabbed = append(grabbed, r)
			return image.NewRGBA(r), nil
		}
	})

	It("should grab the whole screen by default", func() {
		src, err := openScreen(ScreenConfig{Interval: time.Millisecond}, bounds, grab)(context.Background())
		Expect(err).NotTo(HaveOccurred())
		defer src.Close()

		img, err := src.ReadFrame(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds()).To(Equal(screen))
	})

	It("should clip the region to the screen", func() {
		cfg := ScreenConfig{Region: image.Rect(1800, 1000, 2000, 1200), Interval: time.Millisecond}
		src, err := openScreen(cfg, bounds, grab)(context.Background())
		Expect(err).NotTo(HaveOccurred())
		defer src.Close()

		_, err = src.ReadFrame(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(grabbed).To(ConsistOf(image.Rect(1800, 1000, 1920, 1080)))
	})

	It("should refuse a region outside the screen", func() {
		cfg := ScreenConfig{Region: image.Rect(3000, 3000, 3100, 3100)}
		_, err := openScreen(cfg, bounds, grab)(context.Background())
		var accessErr *CameraAccessError
		Expect(errors.As(err, &accessErr)).To(BeTrue())
	})

	It("should report an unavailable display as a CameraAccessError", func() {
		bounds = func() (image.Rectangle, error) { return image.Rectangle{}, errors.New("no display") }
		_, err := openScreen(ScreenConfig{}, bounds, grab)(context.Background())
		var accessErr *CameraAccessError
		Expect(errors.As(err, &accessErr)).To(BeTrue())
		Expect(accessErr.Device).To(Equal("screen"))
	})

	It("should stop waiting when the context is cancelled", func() {
		src, err := openScreen(ScreenConfig{Interval: time.Hour}, bounds, grab)(context.Background())
		Expect(err).NotTo(HaveOccurred())
		defer src.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = src.ReadFrame(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("ParseRegion", func() {
	It("should parse x,y,w,h", func() {
		r, err := ParseRegion("10, 20, 300, 100")
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(image.Rect(10, 20, 310, 120)))
	})

	It("should treat an empty string as no region", func() {
		r, err := ParseRegion("")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Empty()).To(BeTrue())
	})

	It("should reject the wrong number of fields", func() {
		_, err := ParseRegion("1,2,3")
		Expect(err).To(HaveOccurred())
	})

	It("should reject non-positive sizes", func() {
		_, err := ParseRegion("0,0,0,10")
		Expect(err).To(HaveOccurred())
	})

	It("should reject non-numeric values", func() {
		_, err := ParseRegion("a,b,c,d")
		Expect(err).To(MatchError(ContainSubstring("parsing region")))
	})
})
