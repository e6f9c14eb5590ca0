package cocodet

// Rendering of targets onto their images, for checking the conversion by eye.

import (
	"image"
	"image/color"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
)

// previewPalette holds the instance colours, cycled by object index.
var previewPalette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
}

// RenderTarget draws the target onto a copy of img: masks are blended in with the given opacity
// in [0, 1] and boxes are stroked.
func RenderTarget(img image.Image, t Target, maskOpacity float64) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	blend := func(dst, src uint8) uint8 {
		return uint8(float64(dst)*(1-maskOpacity) + float64(src)*maskOpacity)
	}
	for i, m := range t.Masks {
		c := previewPalette[i%len(previewPalette)]
		for y := 0; y < m.Height && y < b.Dy(); y++ {
			for x := 0; x < m.Width && x < b.Dx(); x++ {
				if m.Pix[y*m.Width+x] == 0 {
					continue
				}
				p := out.Pix[y*out.Stride+4*x:]
				p[0] = blend(p[0], c.R)
				p[1] = blend(p[1], c.G)
				p[2] = blend(p[2], c.B)
			}
		}
	}

	gc := draw2dimg.NewGraphicContext(out)
	gc.SetLineWidth(2)
	for i, box := range t.Boxes {
		gc.SetStrokeColor(previewPalette[i%len(previewPalette)])
		gc.BeginPath()
		draw2dkit.Rectangle(gc, float64(box[0]), float64(box[1]), float64(box[2]), float64(box[3]))
		gc.Stroke()
	}

	return out
}

// SavePreview renders the sample and saves it to path as JPEG or PNG, depending on the file
// extension.
func SavePreview(path string, s Sample) error {
	return saveImage(path, RenderTarget(s.Image, s.Target, 0.5), 90)
}
