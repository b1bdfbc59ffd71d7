package sim

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

var (
	plotBackground = color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xFF}
	plotForeground = color.RGBA{R: 0xFF, G: 0x99, B: 0x00, A: 0xFF}
)

// barChartPNG draws one bar per value in [0,1].
func barChartPNG(values []float64) ([]byte, error) {
	const barWidth, height = 6, 64
	width := barWidth * len(values)
	if width == 0 {
		width = barWidth
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, plotBackground)
	for i, value := range values {
		top := height - int(math.Round(clamp(value)*float64(height-1)))
		for x := i * barWidth; x < (i+1)*barWidth-1; x++ {
			for y := top; y < height; y++ {
				img.Set(x, y, plotForeground)
			}
		}
	}
	return encode(img)
}

// eyeDiagramPNG draws a lens-shaped opening, the shape of a healthy eye.
func eyeDiagramPNG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, plotForeground)
	mid := float64(height) / 2
	for x := 0; x < width; x++ {
		opening := math.Sin(math.Pi*float64(x)/float64(width-1)) * mid * 0.8
		for y := 0; y < height; y++ {
			if math.Abs(float64(y)-mid) < opening {
				img.Set(x, y, plotBackground)
			}
		}
	}
	return encode(img)
}

func fill(img *image.RGBA, c color.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func clamp(value float64) float64 {
	return math.Max(0, math.Min(1, value))
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
