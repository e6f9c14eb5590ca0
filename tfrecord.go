package cocodet

// TFRecord export in the TensorFlow object detection instance segmentation format.

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"golang.org/x/sync/errgroup"

	"github.com/sensorable/cocodet/internal/metrics"
)

// DefaultJPEGQuality is the quality used when re-encoding transformed images.
const DefaultJPEGQuality = 90

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordOptions configures WriteTFRecord.
type TFRecordOptions struct {
	NumShards   int // Number of output files. Values < 1 mean 1.
	Workers     int // Number of samples built concurrently. Values < 1 mean 1.
	JPEGQuality int // Used when transformed images are re-encoded. Defaults to DefaultJPEGQuality.
	Metrics     *metrics.Export

	// Customise may modify the feature map of each sample before it is serialised, as long as all
	// values stay convertible to tensorflow.Feature.
	Customise func(s Sample, m TFFeatureMap)
}

// toTFFeatures converts a sample to the feature map of the object detection API. encoded holds the
// encoded image in the given format.
func toTFFeatures(s Sample, fileName string, encoded []byte, format string,
		categories *CategoryMap) (TFFeatureMap, error) {

	b := s.Image.Bounds()
	width, height := b.Dx(), b.Dy()

	f := make(TFFeatureMap, 16)
	f["image/height"] = height
	f["image/width"] = width
	f["image/filename"] = fileName
	f["image/source_id"] = strconv.FormatInt(s.Target.ImageID, 10)
	f["image/encoded"] = encoded
	f["image/format"] = format

	t := s.Target
	n := t.Len()
	xmins := make([]float32, n)
	ymins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymaxs := make([]float32, n)
	classes := make([]string, n)
	areas := make([]float32, n)
	masks := make([]string, n)
	for i, box := range t.Boxes {
		xmins[i] = box[0] / float32(width)
		ymins[i] = box[1] / float32(height)
		xmaxs[i] = box[2] / float32(width)
		ymaxs[i] = box[3] / float32(height)
		classes[i] = categories.Name(t.Labels[i])
		areas[i] = t.Area[i]

		png, err := encodeImageBytes(t.Masks[i].Gray(), "png", 0)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode mask %d", i)
		}
		masks[i] = string(png)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = append([]int64(nil), t.Labels...)
	f["image/object/area"] = areas
	f["image/object/is_crowd"] = append([]int64(nil), t.IsCrowd...)
	f["image/object/mask"] = masks

	return f, nil
}

// serialiseTFExample converts the feature map to a tensorflow.Example and marshals it. Map entries
// are written in key order, so equal feature maps give equal bytes.
func serialiseTFExample(f TFFeatureMap) (enc []byte, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	var buf proto.Buffer
	buf.SetDeterministic(true)
	if err := buf.Marshal(example.New(f)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildTFRecord loads the sample at index and returns its serialised example and object count.
func buildTFRecord(d *Dataset, index int, opts TFRecordOptions) ([]byte, int, error) {
	s, err := d.Get(index)
	if err != nil {
		return nil, 0, err
	}
	path, err := d.ImagePath(index)
	if err != nil {
		return nil, 0, err
	}

	// Keep the original encoding unless the image was transformed.
	var encoded []byte
	var format string
	if d.transforms == nil {
		if encoded, err = readFile(path); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to read the image %q", path)
		}
		_, format = imageFormat(path)
	} else {
		if encoded, err = encodeImageBytes(s.Image, "jpeg", opts.JPEGQuality); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to encode the image %q", path)
		}
		format = "jpeg"
	}

	f, err := toTFFeatures(s, filepath.Base(path), encoded, format, d.categories)
	if err != nil {
		return nil, 0, err
	}
	if opts.Customise != nil {
		opts.Customise(s, f)
	}

	enc, err := serialiseTFExample(f)
	if err != nil {
		return nil, 0, err
	}
	return enc, s.Target.Len(), nil
}

// ShardPath returns the path of shard idx of numShards. A single shard is written to recordFilePath
// itself.
func ShardPath(recordFilePath string, idx, numShards int) string {
	if numShards <= 1 {
		return recordFilePath
	}
	return recordFilePath + fmt.Sprintf("-%05d-of-%05d", idx, numShards)
}

// WriteTFRecord exports all samples of d to one or more TFRecord files under recordFilePath (with
// suffixes added when opts.NumShards > 1) and writes the label map to labelMapPath.
//
// Samples are built concurrently and written in dataset order. Samples that cannot be built are
// logged and skipped; write errors abort the export.
func WriteTFRecord(recordFilePath, labelMapPath string, d *Dataset,
		opts TFRecordOptions) (err error) {

	if opts.NumShards <= 0 {
		opts.NumShards = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = DefaultJPEGQuality
	}

	n := d.Len()
	shardSize := int(math.Ceil(float64(n) / float64(opts.NumShards)))
	if shardSize == 0 {
		shardSize = 1
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()

	type result struct {
		enc        []byte
		numObjects int
		err        error
	}
	batchSize := 4 * opts.Workers
	results := make([]result, batchSize)
	written := 0

	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}

		// Build the batch concurrently. Build errors are per sample and do not cancel the group.
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				began := time.Now()
				enc, numObjects, err := buildTFRecord(d, i, opts)
				results[i-start] = result{enc, numObjects, err}
				if err == nil {
					opts.Metrics.Exported(numObjects, time.Since(began))
				}
				return nil
			})
		}
		_ = g.Wait()

		// Write in order.
		for i := start; i < end; i++ {
			if i%shardSize == 0 {
				if shardFile != nil {
					if err := shardFile.Close(); err != nil {
						shardFile = nil
						return err
					}
					shardFile = nil
				}

				shardPath := ShardPath(recordFilePath, i/shardSize, opts.NumShards)
				f, err := os.Create(shardPath)
				if err != nil {
					return errors.Wrapf(err, "failed to create shard at %q", shardPath)
				}
				shardFile = f
			}

			r := results[i-start]
			if r.err != nil {
				opts.Metrics.Skipped()
				log().Warnw("Skipping image", "index", i, "error", r.err)
				continue
			}
			if err := tfrecord.Write(shardFile, r.enc); err != nil {
				return errors.Wrap(err, "failed to write example")
			}
			written++
		}

		log().Infof("Exported %d of %d images", end, n)
	}

	log().Infow("TFRecord export finished", "path", recordFilePath, "written", written,
		"skipped", n-written, "shards", opts.NumShards)

	return writeFile(labelMapPath, func(w io.Writer) error {
		return d.categories.WriteLabelMap(w)
	})
}

// DefaultLabelMapPath derives the label map path from a record path, e.g. "train.record" ->
// "train_label_map.pbtxt".
func DefaultLabelMapPath(recordFilePath string) string {
	ext := filepath.Ext(recordFilePath)
	return strings.TrimSuffix(recordFilePath, ext) + "_label_map.pbtxt"
}
