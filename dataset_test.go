package cocodet

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatasetTrain(t *testing.T) {
	root := writeFixture(t, Train)
	catDir := t.TempDir()

	d, err := NewDataset(root, Train, Options{CategoryDir: catDir})
	require.NoError(t, err)

	assert.Equal(t, Train, d.Split())
	assert.Equal(t, 1, d.Len())
	id, err := d.ImageID(0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, filepath.Join(root, "train2017"), d.ImageRoot())

	assert.FileExists(t, filepath.Join(catDir, CategoryMapFile))
	assert.FileExists(t, filepath.Join(catDir, CategoryIndexFile))

	s, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 10), s.Image.Bounds().Size())
	assert.Equal(t, int64(42), s.Target.ImageID)
	assert.Equal(t, []int64{2, 3}, s.Target.Labels)
	assert.Equal(t, []Box{{2, 2, 8, 6}, {15, 5, 20, 10}}, s.Target.Boxes)

	h, w, err := d.HeightAndWidth(0)
	require.NoError(t, err)
	assert.Equal(t, 10, h)
	assert.Equal(t, 20, w)

	_, err = d.Get(1)
	assert.Error(t, err)
	_, _, err = d.HeightAndWidth(-1)
	assert.Error(t, err)
}

func TestNewDatasetVal(t *testing.T) {
	root := writeFixture(t, Train, Val)
	catDir := t.TempDir()

	// The val split needs the category map written by the train split.
	_, err := NewDataset(root, Val, Options{CategoryDir: catDir})
	assert.Error(t, err)

	_, err = NewDataset(root, Train, Options{CategoryDir: catDir})
	require.NoError(t, err)

	d, err := NewDataset(root, Val, Options{CategoryDir: catDir, Year: "2017"})
	require.NoError(t, err)

	// No images are filtered out.
	assert.Equal(t, 3, d.Len())
	for i, want := range []int64{7, 9, 42} {
		id, err := d.ImageID(i)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	s, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []Box{{1, 1, 2, 6}}, s.Target.Boxes)
	assert.Equal(t, []int64{1}, s.Target.Labels)

	s, err = d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Target.Len())
}

func TestNewDatasetTransforms(t *testing.T) {
	root := writeFixture(t, Train)

	d, err := NewDataset(root, Train, Options{
		CategoryDir: t.TempDir(),
		Transforms:  RandomHorizontalFlip(1, 0),
	})
	require.NoError(t, err)

	s, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []Box{{12, 2, 18, 6}, {0, 5, 5, 10}}, s.Target.Boxes)
	assert.Equal(t, uint8(1), s.Target.Masks[0].At(12, 2))
}

func TestNewDatasetErrors(t *testing.T) {
	root := writeFixture(t, Train)
	opts := Options{CategoryDir: t.TempDir()}

	_, err := NewDataset(root, "test", opts)
	assert.Error(t, err)

	_, err = NewDataset(filepath.Join(root, "missing"), Train, opts)
	assert.Error(t, err)

	_, err = NewDataset(root, Train, Options{CategoryDir: opts.CategoryDir, Year: "2014"})
	assert.Error(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "annotations", "instances_train2017.json")))
	_, err = NewDataset(root, Train, opts)
	assert.Error(t, err)
}

func TestGetMissingImage(t *testing.T) {
	root := writeFixture(t, Train)
	require.NoError(t, os.Remove(filepath.Join(root, "train2017", "000000000042.png")))

	d, err := NewDataset(root, Train, Options{CategoryDir: t.TempDir()})
	require.NoError(t, err)
	_, err = d.Get(0)
	assert.Error(t, err)
}

func TestCollate(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	images, targets := Collate([]Sample{
		{Image: a, Target: Target{ImageID: 1}},
		{Image: b, Target: Target{ImageID: 2}},
	})

	assert.Equal(t, []image.Image{a, b}, images)
	require.Len(t, targets, 2)
	assert.Equal(t, int64(2), targets[1].ImageID)
}
