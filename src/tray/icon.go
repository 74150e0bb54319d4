package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
)

const iconSize = 16

var (
	iconFrame = color.RGBA{0x00, 0x78, 0xd4, 0xff}
	iconFill  = color.RGBA{0x00, 0x78, 0xd4, 0x60}
)

// iconImage draws two stacked window frames, the front one translucent.
func iconImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	outline(img, image.Rect(1, 1, 11, 9), iconFrame)
	draw.Draw(img, image.Rect(6, 6, 15, 15), &image.Uniform{iconFill}, image.Point{}, draw.Over)
	outline(img, image.Rect(5, 5, 15, 15), iconFrame)
	return img
}

func outline(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}

// Icon returns the tray icon in the format the platform tray expects.
func Icon() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, iconImage()); err != nil {
		log.Printf("tray: encode icon: %v", err)
		return nil
	}
	return platformIcon(buf.Bytes())
}

// wrapICO packs a PNG image into a single-entry .ico container.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bits per pixel
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6+16))
	buf.Write(pngData)
	return buf.Bytes()
}
