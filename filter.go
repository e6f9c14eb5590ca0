package cocodet

// hasOnlyEmptyBboxes reports whether every annotation has a box with a width or height of at most
// one pixel.
func hasOnlyEmptyBboxes(annotations []COCOAnnotation) bool {
	for _, a := range annotations {
		if a.BBox[2] > 1 && a.BBox[3] > 1 {
			return false
		}
	}
	return true
}

// hasValidAnnotation reports whether the annotations contain at least one box of usable size.
func hasValidAnnotation(annotations []COCOAnnotation) bool {
	if len(annotations) == 0 {
		return false
	}
	return !hasOnlyEmptyBboxes(annotations)
}

// RemoveImagesWithoutAnnotations filters out the images that have no annotations or only boxes
// with close to zero area. All annotations are considered, crowd annotations included.
//
// The order of ids is preserved.
func RemoveImagesWithoutAnnotations(c *COCO, ids []int64) []int64 {
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if hasValidAnnotation(c.Annotations(id)) {
			valid = append(valid, id)
		}
	}

	log().Infof("Filtered out %d of %d images without usable annotations", len(ids)-len(valid),
		len(ids))
	return valid
}
