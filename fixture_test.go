package cocodet

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureJSON is a small instances file. Image 42 has two valid objects and a crowd region, image 7
// only has a box of width 1 and image 9 has no annotations.
const fixtureJSON = `{
  "images": [
    {"id": 42, "file_name": "000000000042.png", "width": 20, "height": 10},
    {"id": 9, "file_name": "000000000009.png", "width": 20, "height": 10},
    {"id": 7, "file_name": "000000000007.png", "width": 20, "height": 10}
  ],
  "annotations": [
    {"id": 100, "image_id": 42, "category_id": 3, "bbox": [2, 2, 6, 4], "area": 24,
     "iscrowd": 0, "segmentation": [[2, 2, 8, 2, 8, 6, 2, 6]]},
    {"id": 101, "image_id": 42, "category_id": 90, "bbox": [15, 5, 10, 10], "area": 25,
     "iscrowd": 0, "segmentation": [[15, 5, 20, 5, 20, 10, 15, 10]]},
    {"id": 102, "image_id": 42, "category_id": 1, "bbox": [0, 0, 20, 10], "area": 200,
     "iscrowd": 1, "segmentation": {"size": [10, 20], "counts": [200]}},
    {"id": 103, "image_id": 7, "category_id": 1, "bbox": [1, 1, 1, 5], "area": 5,
     "iscrowd": 0, "segmentation": [[1, 1, 2, 1, 2, 6, 1, 6]]}
  ],
  "categories": [
    {"id": 1, "name": "person", "supercategory": "person"},
    {"id": 3, "name": "car", "supercategory": "vehicle"},
    {"id": 90, "name": "toothbrush", "supercategory": "indoor"}
  ]
}`

// writeTestImage writes a width x height PNG with a gradient, so that flips are detectable.
func writeTestImage(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(10 * x), uint8(20 * y), 100, 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// writeFixture lays out the fixture as the given split under a new root directory and returns the
// root.
func writeFixture(t *testing.T, splits ...Split) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "annotations"), 0755))
	for _, split := range splits {
		imgDir := filepath.Join(root, string(split)+DefaultYear)
		require.NoError(t, os.MkdirAll(imgDir, 0755))
		for _, name := range []string{"000000000042.png", "000000000009.png", "000000000007.png"} {
			writeTestImage(t, filepath.Join(imgDir, name), 20, 10)
		}

		annoPath := filepath.Join(root, "annotations", "instances_"+string(split)+DefaultYear+".json")
		require.NoError(t, os.WriteFile(annoPath, []byte(fixtureJSON), 0644))
	}
	return root
}

// fixtureCOCO parses the fixture without touching the file system.
func fixtureCOCO(t *testing.T) *COCO {
	t.Helper()

	var f COCOFile
	require.NoError(t, jsonAPI.Unmarshal([]byte(fixtureJSON), &f))
	return NewCOCO(f)
}
