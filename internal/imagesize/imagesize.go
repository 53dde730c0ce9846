// Package imagesize probes the pixel dimensions of encoded images without
// decoding pixel data. JPEG dimensions are adjusted for the EXIF
// orientations that rotate the raster by 90 degrees.
package imagesize

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"
)

// Sizer implements dimension probing over raw encoded bytes.
type Sizer struct{}

// Size returns the display width and height of the image. For JPEGs
// carrying an EXIF orientation of 5 through 8 the stored raster is rotated
// a quarter turn, so width and height are swapped to match what a viewer
// renders.
func (Sizer) Size(data []byte) (int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	w, h := cfg.Width, cfg.Height
	if format == "jpeg" && orientationSwaps(data) {
		w, h = h, w
	}
	return w, h, nil
}

func orientationSwaps(data []byte) bool {
	meta, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return false
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return false
	}
	return orientation >= 5 && orientation <= 8
}
