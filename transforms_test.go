package cocodet

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transformFixture returns a 10x4 image with a red pixel at (0, 0) and a target with one object.
func transformFixture() (image.Image, Target) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 4))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})

	m := NewMask(10, 4)
	m.Set(1, 0, 1)
	return img, Target{
		Boxes:   []Box{{1, 0, 3, 2}},
		Labels:  []int64{1},
		Masks:   []Mask{m},
		ImageID: 5,
		Area:    []float32{4},
		IsCrowd: []int64{0},
	}
}

func TestRandomHorizontalFlip(t *testing.T) {
	img, target := transformFixture()

	out, flipped, err := RandomHorizontalFlip(1, 0).Apply(img, target)
	require.NoError(t, err)
	assert.Equal(t, []Box{{7, 0, 9, 2}}, flipped.Boxes)
	assert.Equal(t, uint8(1), flipped.Masks[0].At(8, 0))
	assert.Equal(t, 1, flipped.Masks[0].Area())
	r, _, _, _ := out.At(9, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	// The input target is left untouched.
	assert.Equal(t, []Box{{1, 0, 3, 2}}, target.Boxes)
	assert.Equal(t, uint8(1), target.Masks[0].At(1, 0))

	out, same, err := RandomHorizontalFlip(0, 0).Apply(img, target)
	require.NoError(t, err)
	assert.Equal(t, img, out)
	assert.Equal(t, target.Boxes, same.Boxes)
}

func TestRandomHorizontalFlipOrder(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	apply := func(flip Transform, ids []int64) map[int64]bool {
		flipped := make(map[int64]bool, len(ids))
		for _, id := range ids {
			target := Target{Boxes: []Box{{0, 0, 1, 1}}, ImageID: id}
			_, out, err := flip.Apply(img, target)
			require.NoError(t, err)
			flipped[id] = out.Boxes[0] != target.Boxes[0]
		}
		return flipped
	}

	var forward, backward []int64
	for id := int64(1); id <= 50; id++ {
		forward = append(forward, id)
		backward = append([]int64{id}, backward...)
	}

	got := apply(RandomHorizontalFlip(0.5, 7), forward)
	assert.Equal(t, got, apply(RandomHorizontalFlip(0.5, 7), backward))
	// Repeated calls give the same result.
	assert.Equal(t, got, apply(RandomHorizontalFlip(0.5, 7), forward))

	n := 0
	for _, f := range got {
		if f {
			n++
		}
	}
	assert.Greater(t, n, 0)
	assert.Less(t, n, 50)
}

func TestResize(t *testing.T) {
	img, target := transformFixture()

	out, resized, err := Resize(20, 0, imaging.Box, imaging.Linear).Apply(img, target)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 8), out.Bounds().Size())
	assert.Equal(t, []Box{{2, 0, 6, 4}}, resized.Boxes)

	m := resized.Masks[0]
	require.Equal(t, 20, m.Width)
	require.Equal(t, 8, m.Height)
	assert.Equal(t, 4, m.Area())
	assert.Equal(t, uint8(1), m.At(2, 0))
	assert.Equal(t, uint8(1), m.At(3, 1))

	out, same, err := Resize(0, 0, imaging.Box, imaging.Linear).Apply(img, target)
	require.NoError(t, err)
	assert.Equal(t, img, out)
	assert.Equal(t, target, same)
}

func TestCompose(t *testing.T) {
	img, target := transformFixture()

	out, got, err := Compose(RandomHorizontalFlip(1, 0), RandomHorizontalFlip(1, 0)).Apply(img, target)
	require.NoError(t, err)
	assert.Equal(t, target.Boxes, got.Boxes)
	assert.Equal(t, target.Masks, got.Masks)
	assert.Equal(t, image.Pt(10, 4), out.Bounds().Size())

	failing := TransformFunc(func(image.Image, Target) (image.Image, Target, error) {
		return nil, Target{}, errors.New("failed")
	})
	_, _, err = Compose(RandomHorizontalFlip(1, 0), failing).Apply(img, target)
	assert.EqualError(t, err, "failed")
}

func TestParseResampleFilter(t *testing.T) {
	for _, name := range []string{"nearest", "box", "linear", "gaussian", "lanczos"} {
		_, err := ParseResampleFilter(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseResampleFilter("bicubic")
	assert.Error(t, err)
}

func TestToCHW(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	img.Set(1, 0, color.NRGBA{0, 0, 255, 255})

	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, ToCHW(img))
}
