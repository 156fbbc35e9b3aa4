package embedders

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// scaled returns img resized to side x side, unless it already has that size
func scaled(img image.Image, side int) image.Image {
	b := img.Bounds()
	if b.Dx() == side && b.Dy() == side {
		return img
	}

	return resize.Resize(uint(side), uint(side), img, resize.Bilinear)
}

// pixels returns the grayscale intensities of img, scaled to side x side, in row-major order and
// in the range [0, 1].
func pixels(img image.Image, side int) []float64 {
	img = scaled(img, side)
	b := img.Bounds()

	ps := make([]float64, 0, side*side)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			ps = append(ps, float64(g.Y)/0xffff)
		}
	}

	return ps
}
