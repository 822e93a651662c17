package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log"
)

const iconSize = 16

var (
	iconFrame = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	iconMark  = color.RGBA{R: 0x60, G: 0xa5, B: 0xfa, A: 0xff}
)

// iconPNG draws the tray icon: a dark rounded tile with a code bracket.
func iconPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			if corner(x, y) {
				continue
			}
			img.SetRGBA(x, y, iconFrame)
		}
	}
	// "<" and ">" strokes
	for i := 0; i < 4; i++ {
		img.SetRGBA(6-i, 4+i, iconMark)
		img.SetRGBA(6-i, 11-i, iconMark)
		img.SetRGBA(9+i, 4+i, iconMark)
		img.SetRGBA(9+i, 11-i, iconMark)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Printf("tray: failed to encode icon: %v", err)
		return nil
	}
	return buf.Bytes()
}

func corner(x, y int) bool {
	last := iconSize - 1
	return (x == 0 || x == last) && (y == 0 || y == last)
}
