package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sensorable/cocodet"
)

// Config holds all command line settings. It can also be read from a YAML file, in which case flags
// given explicitly take precedence.
type Config struct {
	Root        string `yaml:"root"`         // The dataset root directory.
	Dataset     string `yaml:"dataset"`      // train or val.
	Year        string `yaml:"year"`         // The dataset release.
	CategoryDir string `yaml:"category_dir"` // The directory of the category side files.

	TFRecordOut string `yaml:"tfrecord_out"`  // The TFRecord output path.
	LabelMapOut string `yaml:"label_map_out"` // The label map output path.
	NumShards   int    `yaml:"num_shards"`    // The number of TFRecord shard files.
	Workers     int    `yaml:"workers"`       // The number of images processed concurrently.
	VIAOut      string `yaml:"via_out"`       // The VIA project output path.

	PreviewDir   string `yaml:"preview_dir"`   // The output directory for preview renderings.
	PreviewCount int    `yaml:"preview_count"` // The number of previews to render.

	FlipProb         float64 `yaml:"flip_prob"`         // The horizontal flip probability.
	Seed             int64   `yaml:"seed"`              // The random seed for transforms.
	ResizeLonger     int     `yaml:"resize_longer"`     // The target length of the longer side.
	ResizeShorter    int     `yaml:"resize_shorter"`    // The target length of the shorter side.
	DownsampleFilter string  `yaml:"downsample_filter"` // The filter to use when downsampling.
	UpsampleFilter   string  `yaml:"upsample_filter"`   // The filter to use when upsampling.
	JPEGQuality      int     `yaml:"jpeg_quality"`      // The JPEG quality for re-encoded images.

	MetricsAddr string `yaml:"metrics_addr"` // The listen address for /metrics; empty disables it.
	Dev         bool   `yaml:"dev"`          // Human readable development logging.
}

// defaultConfig returns the settings used when neither a flag nor the config file sets a value.
func defaultConfig() Config {
	return Config{
		Dataset:          "train",
		Year:             "2017",
		CategoryDir:      ".",
		NumShards:        1,
		Workers:          4,
		PreviewCount:     10,
		DownsampleFilter: "box",
		UpsampleFilter:   "linear",
		JPEGQuality:      cocodet.DefaultJPEGQuality,
	}
}

// loadConfigFile overlays the settings in the YAML file at path onto cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "cannot read config file %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %q", path)
	}
	return nil
}

// validate checks the settings and normalises out of range values that have a sensible fallback.
func (c *Config) validate() error {
	switch {
	case c.Root == "":
		return errors.New("missing dataset root")
	case c.Dataset != "train" && c.Dataset != "val":
		return errors.Errorf("dataset must be train or val, got %q", c.Dataset)
	case c.TFRecordOut == "" && c.VIAOut == "" && c.PreviewDir == "":
		return errors.New("nothing to do, set at least one of the TFRecord, VIA or preview outputs")
	case c.FlipProb < 0 || c.FlipProb > 1:
		return errors.Errorf("invalid flip probability %v, must be in [0, 1]", c.FlipProb)
	case c.ResizeLonger < 0 || c.ResizeShorter < 0:
		return errors.New("resize lengths must not be negative")
	}

	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = cocodet.DefaultJPEGQuality
	}
	return nil
}
