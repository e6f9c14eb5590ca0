package cocodet

// VGG Image Annotator (VIA) project export, for inspecting the annotations.

import (
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// VIAShape describes the shape of a region. Rect regions use X, Y, Width and Height, polygon
// regions use AllPointsX and AllPointsY.
type VIAShape struct {
	Name       string  `json:"name"`
	X          int32   `json:"x"`
	Y          int32   `json:"y"`
	Width      int32   `json:"width"`
	Height     int32   `json:"height"`
	AllPointsX []int32 `json:"all_points_x,omitempty"`
	AllPointsY []int32 `json:"all_points_y,omitempty"`
}

// VIARegionAnnotation is a single region annotation for a particular image in a VIA file.
type VIARegionAnnotation struct {
	Attributes map[string]string `json:"region_attributes"`
	Shape      VIAShape          `json:"shape_attributes"`
}

// VIAAnnotatedFile defines the VIA annotation structure for a single file.
type VIAAnnotatedFile struct {
	Annotations []VIARegionAnnotation `json:"regions"`
	Attributes  map[string]string     `json:"file_attributes"`
	FilePath    string                `json:"filename"`
	Size        int64                 `json:"size"`
}

// VIAOptionsAttribute defines attributes of type "radio" or "dropdown".
type VIAOptionsAttribute struct {
	Type           string            `json:"type"` // "radio" or "dropdown"
	Description    string            `json:"description"`
	Options        map[string]string `json:"options"`
	DefaultOptions map[string]bool   `json:"default_options"`
}

// VIATextAttribute defines attributes of type "text".
type VIATextAttribute struct {
	Type         string `json:"type"` // "text"
	Description  string `json:"description"`
	DefaultValue string `json:"default_value"`
}

// VIAAttributes defines the VIA attribute metadata.
type VIAAttributes struct {
	Region map[string]interface{} `json:"region"`
	File   map[string]interface{} `json:"file"`
}

// VIAProject defines the VIA project structure.
type VIAProject struct {
	Attributes    VIAAttributes               `json:"_via_attributes"`
	ImageMetadata map[string]VIAAnnotatedFile `json:"_via_img_metadata"`
	// Must exist for VIA to load the project. Default values will be used.
	Settings struct{} `json:"_via_settings"`
}

// Region attribute keys.
const (
	viaLabelAttribute   = "Label"
	viaCrowdAttribute   = "IsCrowd"
	viaAnnotationIDAttr = "AnnotationID"
)

// viaPolygon converts a flat x, y list to a VIA polygon shape.
func viaPolygon(p []float64) VIAShape {
	s := VIAShape{
		Name:       "polygon",
		AllPointsX: make([]int32, 0, len(p)/2),
		AllPointsY: make([]int32, 0, len(p)/2),
	}
	for i := 0; i+1 < len(p); i += 2 {
		s.AllPointsX = append(s.AllPointsX, int32(math.Round(p[i])))
		s.AllPointsY = append(s.AllPointsY, int32(math.Round(p[i+1])))
	}
	return s
}

// ToVIA converts the annotations of all dataset images to a VIA project. Every polygon becomes a
// polygon region; RLE segmentations, which VIA cannot represent, become rect regions of the
// annotation's box. Region labels are the category names.
func (d *Dataset) ToVIA() VIAProject {
	labels := VIAOptionsAttribute{
		Type:           "radio",
		Options:        make(map[string]string, d.categories.Len()),
		DefaultOptions: make(map[string]bool),
	}
	for _, l := range d.categories.Labels() {
		labels.Options[d.categories.Name(l)] = ""
	}

	project := VIAProject{
		Attributes: VIAAttributes{
			Region: map[string]interface{}{
				viaLabelAttribute:   labels,
				viaCrowdAttribute:   VIATextAttribute{Type: "text"},
				viaAnnotationIDAttr: VIATextAttribute{Type: "text"},
			},
			File: make(map[string]interface{}),
		},
		ImageMetadata: make(map[string]VIAAnnotatedFile, len(d.ids)),
	}

	for _, id := range d.ids {
		info, ok := d.coco.Image(id)
		if !ok {
			continue
		}
		anns := d.coco.Annotations(id)

		viaFile := VIAAnnotatedFile{
			Annotations: make([]VIARegionAnnotation, 0, len(anns)),
			Attributes:  make(map[string]string, 0), // Must not be nil as that becomes JSON null.
			FilePath:    info.FileName,
			Size:        fileSize(filepath.Join(d.imgRoot, info.FileName)),
		}
		for _, a := range anns {
			attrs := func() map[string]string {
				label, _ := d.categories.Label(a.CategoryID)
				return map[string]string{
					viaLabelAttribute:   d.categories.Name(label),
					viaCrowdAttribute:   strconv.Itoa(a.IsCrowd),
					viaAnnotationIDAttr: strconv.FormatInt(a.ID, 10),
				}
			}

			if a.Segmentation.IsRLE() || len(a.Segmentation.Polygons) == 0 {
				viaFile.Annotations = append(viaFile.Annotations, VIARegionAnnotation{
					Attributes: attrs(),
					Shape: VIAShape{
						Name:   "rect",
						X:      int32(a.BBox[0]),
						Y:      int32(a.BBox[1]),
						Width:  int32(a.BBox[2]),
						Height: int32(a.BBox[3]),
					},
				})
				continue
			}
			for _, p := range a.Segmentation.Polygons {
				viaFile.Annotations = append(viaFile.Annotations, VIARegionAnnotation{
					Attributes: attrs(),
					Shape:      viaPolygon(p),
				})
			}
		}

		// VIA keys its metadata by file name and size.
		project.ImageMetadata[viaFile.FilePath+strconv.FormatInt(viaFile.Size, 10)] = viaFile
	}

	return project
}

// WriteVIA writes the VIA project data to outFile.
func WriteVIA(outFile string, data VIAProject) error {
	enc, err := jsonAPI.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, enc, 0644); err != nil {
		return errors.Wrapf(err, "cannot write file %q", outFile)
	}
	return nil
}
