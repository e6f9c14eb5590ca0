package cocodet

// Joint image and target transforms applied by Dataset.Get.

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Transform transforms an image together with its target. Implementations must not modify the
// slices of the target they are given.
type Transform interface {
	Apply(img image.Image, t Target) (image.Image, Target, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(img image.Image, t Target) (image.Image, Target, error)

// Apply calls f.
func (f TransformFunc) Apply(img image.Image, t Target) (image.Image, Target, error) {
	return f(img, t)
}

// Compose applies the transforms in order.
func Compose(transforms ...Transform) Transform {
	return TransformFunc(func(img image.Image, t Target) (image.Image, Target, error) {
		var err error
		for _, tr := range transforms {
			if img, t, err = tr.Apply(img, t); err != nil {
				return nil, Target{}, err
			}
		}
		return img, t, nil
	})
}

// RandomHorizontalFlip flips the image, boxes and masks horizontally with probability prob. The
// draw for an image depends only on seed and the target's image ID, so results do not depend on the
// order in which images are transformed.
func RandomHorizontalFlip(prob float64, seed int64) Transform {
	return TransformFunc(func(img image.Image, t Target) (image.Image, Target, error) {
		if flipDraw(seed, t.ImageID) >= prob {
			return img, t, nil
		}
		return flipHorizontal(img, t)
	})
}

// flipDraw returns a value in [0, 1) determined by seed and imageID.
func flipDraw(seed, imageID int64) float64 {
	return rand.New(rand.NewSource(seed ^ imageID*2654435761)).Float64()
}

// flipHorizontal mirrors the image and its target around the vertical center line.
func flipHorizontal(img image.Image, t Target) (image.Image, Target, error) {
	w := float32(img.Bounds().Dx())

	boxes := make([]Box, len(t.Boxes))
	for i, b := range t.Boxes {
		boxes[i] = Box{w - b[2], b[1], w - b[0], b[3]}
	}

	masks := make([]Mask, len(t.Masks))
	for i, m := range t.Masks {
		flipped := NewMask(m.Width, m.Height)
		for y := 0; y < m.Height; y++ {
			src := m.Pix[y*m.Width : (y+1)*m.Width]
			dst := flipped.Pix[y*m.Width : (y+1)*m.Width]
			for x := range src {
				dst[m.Width-1-x] = src[x]
			}
		}
		masks[i] = flipped
	}

	t.Boxes = boxes
	t.Masks = masks
	return imaging.FlipH(img), t, nil
}

// Resize resizes the image to the target lengths of the longer and shorter sides, keeping the
// aspect ratio when one of them is zero. Boxes are scaled accordingly and masks are resampled with
// nearest neighbour interpolation.
func Resize(longerSide, shorterSide int, downsamplingFilter,
		upsamplingFilter imaging.ResampleFilter) Transform {

	return TransformFunc(func(img image.Image, t Target) (image.Image, Target, error) {
		if longerSide <= 0 && shorterSide <= 0 {
			return img, t, nil
		}

		resized, scaleX, scaleY := resizeImage(img, longerSide, shorterSide, downsamplingFilter,
			upsamplingFilter)
		size := resized.Bounds().Size()
		if size.X <= 0 || size.Y <= 0 {
			return nil, Target{}, errors.Errorf("resizing image %d results in an empty image",
				t.ImageID)
		}

		boxes := make([]Box, len(t.Boxes))
		for i, b := range t.Boxes {
			boxes[i] = Box{
				b[0] * float32(scaleX),
				b[1] * float32(scaleY),
				b[2] * float32(scaleX),
				b[3] * float32(scaleY),
			}
		}

		masks := make([]Mask, len(t.Masks))
		for i, m := range t.Masks {
			masks[i] = maskFromImage(imaging.Resize(scaledGray(m), size.X, size.Y,
				imaging.NearestNeighbor))
		}

		t.Boxes = boxes
		t.Masks = masks
		return resized, t, nil
	})
}

// scaledGray returns the mask as a grayscale image with values 0 and 255.
func scaledGray(m Mask) *image.Gray {
	g := m.Gray()
	for i, v := range g.Pix {
		g.Pix[i] = v * 255
	}
	return g
}

// ParseResampleFilter returns the imaging filter for one of the names nearest, box, linear,
// gaussian or lanczos.
func ParseResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, errors.Errorf("unknown resampling filter %q", name)
}

// ToCHW converts the image to a float32 tensor in channel, height, width order with RGB values
// scaled to [0, 1].
func ToCHW(img image.Image) []float32 {
	rgb := imaging.Clone(img)
	w, h := rgb.Rect.Dx(), rgb.Rect.Dy()
	plane := w * h

	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := rgb.Pix[y*rgb.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			out[i] = float32(row[4*x]) / 255
			out[plane+i] = float32(row[4*x+1]) / 255
			out[2*plane+i] = float32(row[4*x+2]) / 255
		}
	}
	return out
}
