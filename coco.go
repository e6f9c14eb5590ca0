package cocodet

// COCO instances annotation file parsing and indexing.

import (
	"bytes"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Instances files are large; json-iterator parses them considerably faster than encoding/json.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// COCOImage is an entry of the "images" list.
type COCOImage struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// COCOCategory is an entry of the "categories" list. IDs are sparse (1..90 for the 80 COCO object
// categories).
type COCOCategory struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// COCOAnnotation is a single object instance.
type COCOAnnotation struct {
	ID           int64        `json:"id"`
	ImageID      int64        `json:"image_id"`
	CategoryID   int64        `json:"category_id"`
	BBox         [4]float64   `json:"bbox"` // x, y, width, height
	Area         float64      `json:"area"`
	IsCrowd      int          `json:"iscrowd"`
	Segmentation Segmentation `json:"segmentation"`
}

// RLE is a run-length encoded mask. Counts are column-major runs, alternating between zeros and
// ones and starting with zeros.
type RLE struct {
	Height int
	Width  int
	Counts []uint32
}

// Segmentation is either a list of polygons, each a flat list of x, y pairs, or an RLE mask.
type Segmentation struct {
	Polygons [][]float64
	RLE      *RLE
}

// IsRLE reports whether the segmentation is a run-length encoded mask.
func (s Segmentation) IsRLE() bool {
	return s.RLE != nil
}

// UnmarshalJSON accepts the polygon list form and both the compressed (string counts) and
// uncompressed (integer counts) RLE forms.
func (s *Segmentation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Segmentation{}
		return nil
	}

	switch data[0] {
	case '[':
		var polygons [][]float64
		if err := jsonAPI.Unmarshal(data, &polygons); err != nil {
			return errors.Wrap(err, "invalid polygon segmentation")
		}
		*s = Segmentation{Polygons: polygons}
		return nil

	case '{':
		var raw struct {
			Size   []int               `json:"size"`
			Counts jsoniter.RawMessage `json:"counts"`
		}
		if err := jsonAPI.Unmarshal(data, &raw); err != nil {
			return errors.Wrap(err, "invalid RLE segmentation")
		}
		if len(raw.Size) != 2 {
			return errors.Errorf("invalid RLE size %v", raw.Size)
		}

		rle := &RLE{Height: raw.Size[0], Width: raw.Size[1]}
		counts := bytes.TrimSpace(raw.Counts)
		if len(counts) > 0 && counts[0] == '"' {
			var enc string
			if err := jsonAPI.Unmarshal(counts, &enc); err != nil {
				return errors.Wrap(err, "invalid RLE counts")
			}
			rle.Counts = DecodeRLEString(enc)
		} else if err := jsonAPI.Unmarshal(counts, &rle.Counts); err != nil {
			return errors.Wrap(err, "invalid RLE counts")
		}
		*s = Segmentation{RLE: rle}
		return nil
	}

	return errors.Errorf("unexpected segmentation value %.20q", data)
}

// MarshalJSON writes polygons as a nested list and RLE masks in the uncompressed form.
func (s Segmentation) MarshalJSON() ([]byte, error) {
	if s.RLE != nil {
		return jsonAPI.Marshal(struct {
			Size   [2]int   `json:"size"`
			Counts []uint32 `json:"counts"`
		}{[2]int{s.RLE.Height, s.RLE.Width}, s.RLE.Counts})
	}
	if s.Polygons == nil {
		return []byte("[]"), nil
	}
	return jsonAPI.Marshal(s.Polygons)
}

// COCOFile is the subset of an instances_*.json file used here.
type COCOFile struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// COCO indexes the content of a COCOFile.
type COCO struct {
	images      map[int64]COCOImage
	categories  []COCOCategory
	annotations map[int64][]COCOAnnotation // By image ID, in file order.
}

// LoadCOCO reads and indexes the instances annotation file at path.
func LoadCOCO(path string) (*COCO, error) {
	enc, err := readFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read annotation file %q", path)
	}

	var f COCOFile
	if err := jsonAPI.Unmarshal(enc, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse COCO annotations from %q", path)
	}

	c := NewCOCO(f)
	log().Infow("Loaded COCO annotations", "path", path, "images", len(f.Images),
		"annotations", len(f.Annotations), "categories", len(f.Categories))
	return c, nil
}

// NewCOCO builds the index for f.
func NewCOCO(f COCOFile) *COCO {
	c := &COCO{
		images:      make(map[int64]COCOImage, len(f.Images)),
		categories:  f.Categories,
		annotations: make(map[int64][]COCOAnnotation, len(f.Images)),
	}
	for _, img := range f.Images {
		c.images[img.ID] = img
	}
	for _, a := range f.Annotations {
		c.annotations[a.ImageID] = append(c.annotations[a.ImageID], a)
	}
	return c
}

// ImageIDs returns the IDs of all images in ascending order.
func (c *COCO) ImageIDs() []int64 {
	ids := make([]int64, 0, len(c.images))
	for id := range c.images {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Image returns the image record for id.
func (c *COCO) Image(id int64) (COCOImage, bool) {
	img, ok := c.images[id]
	return img, ok
}

// Annotations returns all annotations of the image, crowd annotations included. The returned slice
// must not be modified.
func (c *COCO) Annotations(imageID int64) []COCOAnnotation {
	return c.annotations[imageID]
}

// Categories returns the categories in file order.
func (c *COCO) Categories() []COCOCategory {
	return c.categories
}
