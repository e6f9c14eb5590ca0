package cocodet

import (
	"image"
	"path/filepath"

	"github.com/pkg/errors"
)

// Split selects the dataset split.
type Split string

// The supported splits.
const (
	Train Split = "train"
	Val   Split = "val"
)

// DefaultYear is the default dataset release.
const DefaultYear = "2017"

// Options configures a Dataset.
type Options struct {
	// Year is the dataset release, e.g. "2017". Defaults to DefaultYear.
	Year string
	// Transforms are applied by Get. Optional.
	Transforms Transform
	// CategoryDir is the directory of the category side files. Train datasets write them, val
	// datasets read them. Defaults to the working directory.
	CategoryDir string
}

// Sample is an image with its target.
type Sample struct {
	Image  image.Image
	Target Target
}

// Dataset is the COCO detection dataset for one split, laid out as
//
//	<root>/<split><year>/<file_name>
//	<root>/annotations/instances_<split><year>.json
type Dataset struct {
	split      Split
	imgRoot    string
	annoPath   string
	transforms Transform
	coco       *COCO
	categories *CategoryMap
	ids        []int64
}

// NewDataset loads the annotations of the given split under root.
//
// For Train, the category map is derived from the annotation file and saved to
// Options.CategoryDir, and images without usable annotations are removed. For Val, the category map
// previously saved by a Train dataset is loaded from Options.CategoryDir.
func NewDataset(root string, split Split, opts Options) (*Dataset, error) {
	if split != Train && split != Val {
		return nil, errors.Errorf("dataset must be %q or %q, got %q", Train, Val, split)
	}
	if opts.Year == "" {
		opts.Year = DefaultYear
	}
	if opts.CategoryDir == "" {
		opts.CategoryDir = "."
	}

	if err := requireDir(root); err != nil {
		return nil, err
	}
	d := &Dataset{
		split:      split,
		imgRoot:    filepath.Join(root, string(split)+opts.Year),
		annoPath:   filepath.Join(root, "annotations", "instances_"+string(split)+opts.Year+".json"),
		transforms: opts.Transforms,
	}
	if err := requireDir(d.imgRoot); err != nil {
		return nil, err
	}
	if err := requireFile(d.annoPath); err != nil {
		return nil, err
	}

	coco, err := LoadCOCO(d.annoPath)
	if err != nil {
		return nil, err
	}
	d.coco = coco

	if split == Train {
		d.categories = NewCategoryMap(coco.Categories())
		if err := d.categories.Save(opts.CategoryDir); err != nil {
			return nil, errors.Wrap(err, "failed to save the category map")
		}
	} else {
		if d.categories, err = LoadCategoryMap(opts.CategoryDir); err != nil {
			return nil, err
		}
	}

	d.ids = coco.ImageIDs()
	if split == Train {
		d.ids = RemoveImagesWithoutAnnotations(coco, d.ids)
	}

	log().Infow("Dataset ready", "split", split, "images", len(d.ids),
		"categories", d.categories.Len())
	return d, nil
}

// Len is the number of images.
func (d *Dataset) Len() int {
	return len(d.ids)
}

// Split returns the dataset split.
func (d *Dataset) Split() Split {
	return d.split
}

// COCO returns the annotation index.
func (d *Dataset) COCO() *COCO {
	return d.coco
}

// Categories returns the category map.
func (d *Dataset) Categories() *CategoryMap {
	return d.categories
}

// ImageRoot is the directory containing the images.
func (d *Dataset) ImageRoot() string {
	return d.imgRoot
}

// ImageID returns the COCO image ID at index.
func (d *Dataset) ImageID(index int) (int64, error) {
	if index < 0 || index >= len(d.ids) {
		return 0, errors.Errorf("index %d out of range [0, %d)", index, len(d.ids))
	}
	return d.ids[index], nil
}

// imageInfo returns the image record at index.
func (d *Dataset) imageInfo(index int) (COCOImage, error) {
	id, err := d.ImageID(index)
	if err != nil {
		return COCOImage{}, err
	}
	img, ok := d.coco.Image(id)
	if !ok {
		return COCOImage{}, errors.Errorf("no image record for image %d", id)
	}
	return img, nil
}

// ImagePath returns the path of the image file at index.
func (d *Dataset) ImagePath(index int) (string, error) {
	info, err := d.imageInfo(index)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.imgRoot, info.FileName), nil
}

// Get loads the image at index, converted to RGB, and builds its target. The target uses the size
// of the decoded image. Transforms are applied last.
func (d *Dataset) Get(index int) (Sample, error) {
	info, err := d.imageInfo(index)
	if err != nil {
		return Sample{}, err
	}

	img, err := loadRGBImage(filepath.Join(d.imgRoot, info.FileName))
	if err != nil {
		return Sample{}, err
	}

	size := img.Bounds().Size()
	t, err := ParseTargets(info.ID, d.coco.Annotations(info.ID), size.X, size.Y, d.categories)
	if err != nil {
		return Sample{}, err
	}

	var out image.Image = img
	if d.transforms != nil {
		if out, t, err = d.transforms.Apply(out, t); err != nil {
			return Sample{}, errors.Wrapf(err, "transform failed for image %d", info.ID)
		}
	}

	return Sample{Image: out, Target: t}, nil
}

// HeightAndWidth returns the image size at index as recorded in the annotation file, without
// loading the image.
func (d *Dataset) HeightAndWidth(index int) (height, width int, err error) {
	info, err := d.imageInfo(index)
	if err != nil {
		return 0, 0, err
	}
	return info.Height, info.Width, nil
}

// Collate splits a batch of samples into parallel image and target slices.
func Collate(batch []Sample) ([]image.Image, []Target) {
	images := make([]image.Image, len(batch))
	targets := make([]Target, len(batch))
	for i, s := range batch {
		images[i] = s.Image
		targets[i] = s.Target
	}
	return images, targets
}
