package cocodet

// Instance masks: polygon rasterisation and COCO run-length encoding.

import (
	"image"
	"image/color"

	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/pkg/errors"
)

// Mask is a binary instance mask. Pix holds one byte per pixel, row-major, with values 0 or 1.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask returns an all-zero mask.
func NewMask(width, height int) Mask {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At returns the mask value at (x, y), which must be within bounds.
func (m Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// Set sets the mask value at (x, y), which must be within bounds.
func (m Mask) Set(x, y int, v uint8) {
	m.Pix[y*m.Width+x] = v
}

// Area is the number of set pixels.
func (m Mask) Area() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Gray returns the mask as a grayscale image with the same 0/1 values.
func (m Mask) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(g.Pix, m.Pix)
	return g
}

// maskFromImage thresholds the red channel of img at half intensity.
func maskFromImage(img image.Image) Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if r >= 0x8000 {
				m.Pix[y*m.Width+x] = 1
			}
		}
	}
	return m
}

// PolygonsToMask rasterises the union of the polygons of a single object into a width x height
// mask. Each polygon is a flat list of x, y pairs. Polygons with fewer than three points are
// ignored. A pixel is set when at least half of it is covered.
func PolygonsToMask(polygons [][]float64, width, height int) Mask {
	m := NewMask(width, height)
	if m.Width == 0 || m.Height == 0 || len(polygons) == 0 {
		return m
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetFillColor(color.RGBA{255, 255, 255, 255})
	gc.SetFillRule(draw2d.FillRuleWinding)

	for _, p := range polygons {
		if len(p) < 6 {
			continue
		}
		gc.BeginPath()
		gc.MoveTo(p[0], p[1])
		for i := 2; i+1 < len(p); i += 2 {
			gc.LineTo(p[i], p[i+1])
		}
		gc.Close()
		gc.Fill()
	}

	for y := 0; y < height; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < width; x++ {
			if row[4*x+3] >= 128 {
				m.Pix[y*width+x] = 1
			}
		}
	}

	return m
}

// Decode expands the run-length encoding into a mask.
func (r RLE) Decode() (Mask, error) {
	m := NewMask(r.Width, r.Height)
	n := len(m.Pix)

	pos := 0
	var v uint8
	for _, c := range r.Counts {
		end := pos + int(c)
		if end > n {
			return Mask{}, errors.Errorf("RLE counts exceed the mask size %dx%d", r.Width, r.Height)
		}
		if v == 1 {
			// Column-major order.
			for j := pos; j < end; j++ {
				m.Pix[(j%r.Height)*r.Width+j/r.Height] = 1
			}
		}
		pos = end
		v ^= 1
	}

	return m, nil
}

// EncodeRLE run-length encodes the mask in column-major order.
func EncodeRLE(m Mask) RLE {
	r := RLE{Height: m.Height, Width: m.Width}

	var v uint8
	var run uint32
	for x := 0; x < m.Width; x++ {
		for y := 0; y < m.Height; y++ {
			if m.Pix[y*m.Width+x] != v {
				r.Counts = append(r.Counts, run)
				run = 0
				v ^= 1
			}
			run++
		}
	}
	r.Counts = append(r.Counts, run)

	return r
}

// DecodeRLEString decodes the compressed COCO counts string. Each count is stored as a sequence of
// 5 bit groups in printable characters (offset 48), with the 6th bit flagging continuation. From the
// fourth count on, counts are stored as the difference to the count two positions earlier.
func DecodeRLEString(s string) []uint32 {
	counts := make([]int64, 0, len(s))
	for p := 0; p < len(s); {
		var x int64
		var k uint
		for more := true; more && p < len(s); {
			c := int64(s[p]) - 48
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			k++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * k)
			}
		}
		if len(counts) > 2 {
			x += counts[len(counts)-2]
		}
		counts = append(counts, x)
	}

	out := make([]uint32, len(counts))
	for i, c := range counts {
		out[i] = uint32(c)
	}
	return out
}

// EncodeRLEString is the inverse of DecodeRLEString.
func EncodeRLEString(counts []uint32) string {
	b := make([]byte, 0, 2*len(counts))
	for i := range counts {
		x := int64(counts[i])
		if i > 2 {
			x -= int64(counts[i-2])
		}
		for more := true; more; {
			c := x & 0x1f
			x >>= 5
			if c&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				c |= 0x20
			}
			b = append(b, byte(c+48))
		}
	}
	return string(b)
}

// SegmentationToMask rasterises or decodes the segmentation into a width x height mask. RLE masks
// must have exactly that size.
func SegmentationToMask(seg Segmentation, width, height int) (Mask, error) {
	if seg.RLE == nil {
		return PolygonsToMask(seg.Polygons, width, height), nil
	}
	if seg.RLE.Width != width || seg.RLE.Height != height {
		return Mask{}, errors.Errorf("RLE size %dx%d does not match the image size %dx%d",
			seg.RLE.Width, seg.RLE.Height, width, height)
	}
	return seg.RLE.Decode()
}

// ConvertPolyMasks returns one mask per segmentation. The result is empty, not nil, if there are no
// segmentations.
func ConvertPolyMasks(segmentations []Segmentation, width, height int) ([]Mask, error) {
	masks := make([]Mask, 0, len(segmentations))
	for i, seg := range segmentations {
		m, err := SegmentationToMask(seg, width, height)
		if err != nil {
			return nil, errors.Wrapf(err, "segmentation %d", i)
		}
		masks = append(masks, m)
	}
	return masks, nil
}
