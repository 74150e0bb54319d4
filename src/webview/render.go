package webview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"game-overlay/src/desktop"
	"game-overlay/src/screenshot"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Renderer draws the content of url into dst as top-down BGRA pixels.
type Renderer interface {
	Render(url string, width, height int, dst []byte) error
}

// CardRenderer draws a framed card showing the overlay's address.
type CardRenderer struct {
	Background color.RGBA
	Border     color.RGBA
	Text       color.RGBA
}

// NewCardRenderer returns the default dark card.
func NewCardRenderer() *CardRenderer {
	return &CardRenderer{
		Background: color.RGBA{R: 0x20, G: 0x22, B: 0x28, A: 0xff},
		Border:     color.RGBA{R: 0x4a, G: 0x90, B: 0xd9, A: 0xff},
		Text:       color.RGBA{R: 0xe8, G: 0xe8, B: 0xe8, A: 0xff},
	}
}

const (
	cardPadding = 6
	lineHeight  = 15
	glyphWidth  = 7
)

func (c *CardRenderer) Render(url string, width, height int, dst []byte) error {
	if err := desktop.ValidatePixels(dst, width, height); err != nil {
		return fmt.Errorf("render %s: %w", url, err)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c.Border}, image.Point{}, draw.Src)
	if width > 2 && height > 2 {
		inner := image.Rect(1, 1, width-1, height-1)
		draw.Draw(img, inner, &image.Uniform{C: c.Background}, image.Point{}, draw.Src)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: c.Text},
		Face: basicfont.Face7x13,
	}
	y := cardPadding + basicfont.Face7x13.Ascent
	for _, line := range wrap(url, (width-2*cardPadding)/glyphWidth) {
		if y > height-cardPadding {
			break
		}
		d.Dot = fixed.P(cardPadding, y)
		d.DrawString(line)
		y += lineHeight
	}

	copy(dst, screenshot.ToBGRA(img))
	return nil
}

// wrap splits s into lines of at most n runes.
func wrap(s string, n int) []string {
	if n <= 0 {
		return nil
	}
	runes := []rune(s)
	var lines []string
	for len(runes) > n {
		lines = append(lines, string(runes[:n]))
		runes = runes[n:]
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
