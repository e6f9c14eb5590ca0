package cocodet

// Mapping of the sparse COCO category IDs to contiguous labels.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// File names of the category side files.
const (
	CategoryMapFile   = "coco91_to_80.json"  // COCO category ID -> label.
	CategoryIndexFile = "coco80_indices.json" // Label -> category name.
)

// CategoryMap maps COCO category IDs to the labels 1..N used as training classes. Label 0 is left
// for the background class.
type CategoryMap struct {
	labels map[int64]int64  // Category ID -> label.
	names  map[int64]string // Label -> name.
}

// NewCategoryMap assigns label i+1 to the i-th category, in the given order.
func NewCategoryMap(categories []COCOCategory) *CategoryMap {
	m := &CategoryMap{
		labels: make(map[int64]int64, len(categories)),
		names:  make(map[int64]string, len(categories)),
	}
	for _, c := range categories {
		if _, dup := m.labels[c.ID]; dup {
			log().Warnw("Ignoring duplicate category", "id", c.ID, "name", c.Name)
			continue
		}
		label := int64(len(m.labels) + 1)
		m.labels[c.ID] = label
		m.names[label] = c.Name
	}
	return m
}

// Label returns the label for the COCO category ID.
func (m *CategoryMap) Label(categoryID int64) (int64, bool) {
	l, ok := m.labels[categoryID]
	return l, ok
}

// Name returns the category name for label, or "" if it is unknown.
func (m *CategoryMap) Name(label int64) string {
	return m.names[label]
}

// Len is the number of labels, excluding the background.
func (m *CategoryMap) Len() int {
	return len(m.labels)
}

// Labels returns all labels in ascending order.
func (m *CategoryMap) Labels() []int64 {
	labels := make([]int64, 0, len(m.labels))
	for _, l := range m.labels {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// Save writes CategoryMapFile and CategoryIndexFile to dir. Entries are written in label order,
// which is the category order of the annotation file.
func (m *CategoryMap) Save(dir string) error {
	labels := m.Labels()
	ids := make([]int64, 0, len(m.labels))
	for id := range m.labels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.labels[ids[i]] < m.labels[ids[j]] })

	toLabel := make([]orderedEntry, len(ids))
	for i, id := range ids {
		toLabel[i] = orderedEntry{strconv.FormatInt(id, 10), m.labels[id]}
	}
	indices := make([]orderedEntry, 0, len(labels))
	for _, l := range labels {
		if name, ok := m.names[l]; ok {
			indices = append(indices, orderedEntry{strconv.FormatInt(l, 10), name})
		}
	}

	for _, v := range []struct {
		name    string
		entries []orderedEntry
	}{
		{CategoryMapFile, toLabel},
		{CategoryIndexFile, indices},
	} {
		enc, err := marshalOrderedObject(v.entries)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, v.name)
		if err := os.WriteFile(path, enc, 0644); err != nil {
			return errors.Wrapf(err, "cannot write file %q", path)
		}
	}

	return nil
}

// orderedEntry is a key and value of a JSON object written by marshalOrderedObject.
type orderedEntry struct {
	key   string
	value interface{}
}

// marshalOrderedObject encodes the entries as a JSON object in the given order, indented with 4
// spaces.
func marshalOrderedObject(entries []orderedEntry) ([]byte, error) {
	if len(entries) == 0 {
		return []byte("{}"), nil
	}

	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)

	stream.WriteRaw("{")
	for i, e := range entries {
		if i > 0 {
			stream.WriteRaw(",")
		}
		stream.WriteRaw("\n    ")
		stream.WriteString(e.key)
		stream.WriteRaw(": ")
		stream.WriteVal(e.value)
	}
	stream.WriteRaw("\n}")

	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// LoadCategoryMap reads the category side files from dir. CategoryMapFile is required, while
// CategoryIndexFile is optional and only provides the label names.
func LoadCategoryMap(dir string) (*CategoryMap, error) {
	path := filepath.Join(dir, CategoryMapFile)
	enc, err := readFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read the category map %q", path)
	}

	var toLabel map[string]int64
	if err := jsonAPI.Unmarshal(enc, &toLabel); err != nil {
		return nil, errors.Wrapf(err, "failed to parse the category map %q", path)
	}

	m := &CategoryMap{
		labels: make(map[int64]int64, len(toLabel)),
		names:  make(map[int64]string, len(toLabel)),
	}
	for k, l := range toLabel {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || l <= 0 {
			return nil, errors.Errorf("invalid entry in %q: %s: %d", path, k, l)
		}
		m.labels[id] = l
	}

	// Names are informative only.
	indexPath := filepath.Join(dir, CategoryIndexFile)
	enc, err = readFile(indexPath)
	if os.IsNotExist(err) {
		return m, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "cannot read the category index %q", indexPath)
	}

	var indices map[string]string
	if err := jsonAPI.Unmarshal(enc, &indices); err != nil {
		return nil, errors.Wrapf(err, "failed to parse the category index %q", indexPath)
	}
	for k, name := range indices {
		l, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid entry in %q: %s: %s", indexPath, k, name)
		}
		m.names[l] = name
	}

	return m, nil
}

// WriteLabelMap writes the labels in the TensorFlow object detection StringIntLabelMap text format.
func (m *CategoryMap) WriteLabelMap(w io.Writer) error {
	for _, l := range m.Labels() {
		name := m.names[l]
		if name == "" {
			name = strconv.FormatInt(l, 10)
		}
		if _, err := fmt.Fprintf(w, "item {\n  name: %q\n  id: %d\n}\n", name, l); err != nil {
			return err
		}
	}
	return nil
}
