// Converts the COCO instance segmentation dataset into Mask R-CNN training targets and exports them
// as TFRecord files, a VGG Image Annotator project and preview renderings.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sensorable/cocodet"
	"github.com/sensorable/cocodet/internal/logger"
	"github.com/sensorable/cocodet/internal/metrics"
)

// parseFlags returns the settings from the defaults, the optional config file and the command line,
// in increasing order of precedence.
func parseFlags(args []string) (Config, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "Usage of %s:\n", fs.Name())
		_, _ = fmt.Fprintln(fs.Output(), "  -root <dir> [-dataset train|val] [-tfrecord-out <file>]"+
				" [-via-out <file>] [-preview-dir <dir>]")
		_, _ = fmt.Fprintln(fs.Output())
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "The YAML config file `path`; flags override its values")

	// Dataset arguments.
	fs.StringVar(&cfg.Root, "root", cfg.Root,
		"The dataset root `path` containing <split><year>/ and annotations/")
	fs.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "The dataset split {train, val}")
	fs.StringVar(&cfg.Year, "year", cfg.Year, "The dataset release `year`")
	fs.StringVar(&cfg.CategoryDir, "category-dir", cfg.CategoryDir,
		"The `path` to the directory of the category map files (written for train, read for val)")

	// Output arguments.
	fs.StringVar(&cfg.TFRecordOut, "tfrecord-out", cfg.TFRecordOut, "The TFRecord output file `path`")
	fs.StringVar(&cfg.LabelMapOut, "label-map-out", cfg.LabelMapOut,
		"The label map output file `path` (derived from -tfrecord-out when empty)")
	fs.IntVar(&cfg.NumShards, "num-shards", cfg.NumShards, "The number of TFRecord shard files")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "The number of images processed concurrently")
	fs.StringVar(&cfg.VIAOut, "via-out", cfg.VIAOut, "The VIA project output file `path`")
	fs.StringVar(&cfg.PreviewDir, "preview-dir", cfg.PreviewDir,
		"The output directory `path` for preview renderings of the targets")
	fs.IntVar(&cfg.PreviewCount, "preview-count", cfg.PreviewCount,
		"The number of previews to render")

	// Transform arguments.
	fs.Float64Var(&cfg.FlipProb, "flip-prob", cfg.FlipProb,
		"The probability of a random horizontal flip")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "The random seed for the transforms")
	fs.IntVar(&cfg.ResizeLonger, "resize-longer", cfg.ResizeLonger,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	fs.IntVar(&cfg.ResizeShorter, "resize-shorter", cfg.ResizeShorter,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	fs.StringVar(&cfg.DownsampleFilter, "downsample-filter", cfg.DownsampleFilter,
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	fs.StringVar(&cfg.UpsampleFilter, "upsample-filter", cfg.UpsampleFilter,
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	fs.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality,
		"The quality to use when re-encoding JPEGs [1, 100]")

	// Ambient arguments.
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr,
		"The `address` to serve prometheus metrics on (empty disables)")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "Human readable development logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Overlay the config file, then parse again so that explicit flags win.
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			return Config{}, err
		}
		if err := fs.Parse(args); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		fs.Usage()
		return Config{}, err
	}
	return cfg, nil
}

// buildTransforms returns the transforms selected by cfg, or nil if there are none.
func buildTransforms(cfg Config) (cocodet.Transform, error) {
	var transforms []cocodet.Transform
	if cfg.ResizeLonger > 0 || cfg.ResizeShorter > 0 {
		down, err := cocodet.ParseResampleFilter(cfg.DownsampleFilter)
		if err != nil {
			return nil, err
		}
		up, err := cocodet.ParseResampleFilter(cfg.UpsampleFilter)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, cocodet.Resize(cfg.ResizeLonger, cfg.ResizeShorter, down, up))
	}
	if cfg.FlipProb > 0 {
		transforms = append(transforms, cocodet.RandomHorizontalFlip(cfg.FlipProb, cfg.Seed))
	}

	if len(transforms) == 0 {
		return nil, nil
	}
	return cocodet.Compose(transforms...), nil
}

// writePreviews renders the first count samples of d into dir and returns the number of previews
// written. Samples that cannot be loaded are skipped.
func writePreviews(d *cocodet.Dataset, dir string, count int) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	if count > d.Len() {
		count = d.Len()
	}

	written := 0
	for i := 0; i < count; i++ {
		s, err := d.Get(i)
		if err != nil {
			logger.S().Warnw("Skipping preview", "index", i, "error", err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%012d.jpg", s.Target.ImageID))
		if err := cocodet.SavePreview(path, s); err != nil {
			return written, err
		}
		written++
	}

	logger.S().Infof("Wrote %d of %d previews to %s", written, count, dir)
	return written, nil
}

func run(cfg Config) error {
	transforms, err := buildTransforms(cfg)
	if err != nil {
		return err
	}

	d, err := cocodet.NewDataset(filepath.Clean(cfg.Root), cocodet.Split(cfg.Dataset),
		cocodet.Options{Year: cfg.Year, Transforms: transforms, CategoryDir: cfg.CategoryDir})
	if err != nil {
		return errors.Wrap(err, "failed to load the dataset")
	}

	var m *metrics.Export
	if cfg.MetricsAddr != "" {
		m = metrics.NewExport()
		go func() {
			if err := m.Serve(cfg.MetricsAddr); err != nil {
				logger.S().Errorw("Metrics server stopped", "error", err)
			}
		}()
	}

	if cfg.PreviewDir != "" {
		if _, err := writePreviews(d, cfg.PreviewDir, cfg.PreviewCount); err != nil {
			return errors.Wrap(err, "failed to write previews")
		}
	}

	if cfg.VIAOut != "" {
		if err := cocodet.WriteVIA(cfg.VIAOut, d.ToVIA()); err != nil {
			return errors.Wrap(err, "VIA export failed")
		}
		logger.S().Infof("Successfully wrote the VIA project for %d files to %s", d.Len(),
			cfg.VIAOut)
	}

	if cfg.TFRecordOut != "" {
		labelMapPath := cfg.LabelMapOut
		if labelMapPath == "" {
			labelMapPath = cocodet.DefaultLabelMapPath(cfg.TFRecordOut)
		}
		err := cocodet.WriteTFRecord(cfg.TFRecordOut, labelMapPath, d, cocodet.TFRecordOptions{
			NumShards:   cfg.NumShards,
			Workers:     cfg.Workers,
			JPEGQuality: cfg.JPEGQuality,
			Metrics:     m,
		})
		if err != nil {
			return errors.Wrap(err, "TFRecord export failed")
		}
	}

	logger.S().Info("Total number of images: ", d.Len())
	return nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err == flag.ErrHelp {
		os.Exit(0)
	} else if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := logger.Init(cfg.Dev); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialise logging: ", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.S().Errorf("%+v", err)
		logger.Sync()
		os.Exit(1)
	}
}
