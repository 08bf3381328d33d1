package dataset

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
)

// Luma converts 8-bit RGB to 8-bit gray using the ITU-R 601-2 transform
// in 16.16 fixed point.
func Luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// DecodeImage decodes a PNG or JPEG, converts it to grayscale and samples it
// onto a side×side grid. Values are scaled to [0, 1].
func DecodeImage(raw []byte, side int) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty image")
	}
	pixels := make([]float64, side*side)
	stepX := float64(width) / float64(side)
	stepY := float64(height) / float64(side)
	for gy := 0; gy < side; gy++ {
		for gx := 0; gx < side; gx++ {
			px := bounds.Min.X + int(math.Min(float64(width-1), float64(gx)*stepX))
			py := bounds.Min.Y + int(math.Min(float64(height-1), float64(gy)*stepY))
			r, g, b, _ := img.At(px, py).RGBA()
			pixels[gy*side+gx] = float64(Luma(uint8(r>>8), uint8(g>>8), uint8(b>>8))) / 255
		}
	}
	return pixels, nil
}
