package model

import (
	"image"

	"github.com/nfnt/resize"
)

// Preprocess resizes img to the model's square input and converts it to a
// float32 tensor with a leading batch dimension of 1, laid out as the
// metadata says.
func Preprocess(img image.Image, meta Metadata) []float32 {
	size := uint(meta.ImageSize)

	interp := resize.Bilinear
	if meta.Interpolation == InterpolationNearest {
		interp = resize.NearestNeighbor
	}
	resized := resize.Resize(size, size, img, interp)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	scale := meta.Scale
	if scale == 0 {
		scale = 1
	}

	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			rv := float32(r>>8) * scale
			gv := float32(g>>8) * scale
			bv := float32(b>>8) * scale

			pixelIndex := y*width + x
			if meta.Layout == LayoutNCHW {
				inputData[pixelIndex] = rv
				inputData[plane+pixelIndex] = gv
				inputData[2*plane+pixelIndex] = bv
				continue
			}
			inputData[3*pixelIndex] = rv
			inputData[3*pixelIndex+1] = gv
			inputData[3*pixelIndex+2] = bv
		}
	}

	return inputData
}
