package cocodet

import (
	"math"

	"github.com/pkg/errors"
)

// Box is an axis-aligned box as xmin, ymin, xmax, ymax in absolute pixel coordinates.
type Box [4]float32

// Width is the box width.
func (b Box) Width() float32 {
	return b[2] - b[0]
}

// Height is the box height.
func (b Box) Height() float32 {
	return b[3] - b[1]
}

// Target is the training target for one image. Boxes, Labels, Masks, Area and IsCrowd are parallel
// slices with one element per object.
type Target struct {
	Boxes   []Box
	Labels  []int64
	Masks   []Mask // Each mask has the size of the image.
	ImageID int64
	Area    []float32 // The annotated area, for evaluation with the COCO API.
	IsCrowd []int64
}

// Len is the number of objects.
func (t Target) Len() int {
	return len(t.Boxes)
}

// ParseTargets builds the target for the image with the given ID and size from its annotations.
//
// Crowd annotations are dropped. Boxes are converted from x, y, width, height to corner form and
// clamped to the image. Objects whose clamped box is empty are dropped last, after mask
// rasterisation, together with all their other values.
func ParseTargets(imageID int64, annotations []COCOAnnotation, width, height int,
		categories *CategoryMap) (Target, error) {

	if width <= 0 || height <= 0 {
		return Target{}, errors.Errorf("invalid image size %dx%d for image %d", width, height,
			imageID)
	}

	// Only single objects.
	anns := make([]COCOAnnotation, 0, len(annotations))
	for _, a := range annotations {
		if a.IsCrowd == 0 {
			anns = append(anns, a)
		}
	}

	w, h := float64(width), float64(height)
	clamp := func(v, max float64) float32 {
		return float32(math.Min(math.Max(v, 0), max))
	}

	boxes := make([]Box, len(anns))
	labels := make([]int64, len(anns))
	segmentations := make([]Segmentation, len(anns))
	for i, a := range anns {
		boxes[i] = Box{
			clamp(a.BBox[0], w),
			clamp(a.BBox[1], h),
			clamp(a.BBox[0]+a.BBox[2], w),
			clamp(a.BBox[1]+a.BBox[3], h),
		}

		label, ok := categories.Label(a.CategoryID)
		if !ok {
			return Target{}, errors.Errorf("unknown category %d in annotation %d", a.CategoryID, a.ID)
		}
		labels[i] = label
		segmentations[i] = a.Segmentation
	}

	masks, err := ConvertPolyMasks(segmentations, width, height)
	if err != nil {
		return Target{}, errors.Wrapf(err, "image %d", imageID)
	}

	// Keep valid objects, i.e. xmax > xmin and ymax > ymin.
	t := Target{
		Boxes:   make([]Box, 0, len(anns)),
		Labels:  make([]int64, 0, len(anns)),
		Masks:   make([]Mask, 0, len(anns)),
		ImageID: imageID,
		Area:    make([]float32, 0, len(anns)),
		IsCrowd: make([]int64, 0, len(anns)),
	}
	for i, b := range boxes {
		if b[3] <= b[1] || b[2] <= b[0] {
			continue
		}
		t.Boxes = append(t.Boxes, b)
		t.Labels = append(t.Labels, labels[i])
		t.Masks = append(t.Masks, masks[i])
		t.Area = append(t.Area, float32(anns[i].Area))
		t.IsCrowd = append(t.IsCrowd, int64(anns[i].IsCrowd))
	}

	return t, nil
}
