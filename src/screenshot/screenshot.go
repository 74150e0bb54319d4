package screenshot

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Region represents a screen area in virtual-screen coordinates
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// VirtualBounds returns the union of all active display bounds
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

// CaptureRegion copies a screen region and returns its pixels as top-down
// BGRA, 4 bytes per pixel, ready to be written into an overlay surface.
func CaptureRegion(region Region) ([]byte, error) {
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", region.Width, region.Height)
	}

	bounds := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return ToBGRA(img), nil
}

// ToBGRA converts an RGBA image into a tightly packed BGRA buffer.
func ToBGRA(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := out[y*w*4 : (y+1)*w*4]
		for x := 0; x < w*4; x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = src[x+3]
		}
	}
	return out
}
