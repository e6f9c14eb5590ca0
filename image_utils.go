package cocodet

import (
	"bytes"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide, shorterSide int,
		downsamplingFilter, upsamplingFilter imaging.ResampleFilter) (
		resized image.Image, scaleWidth, scaleHeight float64) {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	var filter imaging.ResampleFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	} else {
		filter = upsamplingFilter
	}

	if isLandscape {
		resized = imaging.Resize(img, longerSide, shorterSide, filter)
		scaleWidth = float64(longerSide) / float64(imgLonger)
		scaleHeight = float64(shorterSide) / float64(imgShorter)
	} else { // Portrait.
		resized = imaging.Resize(img, shorterSide, longerSide, filter)
		scaleWidth = float64(shorterSide) / float64(imgShorter)
		scaleHeight = float64(longerSide) / float64(imgLonger)
	}

	return resized, scaleWidth, scaleHeight
}

// loadRGBImage reads and decodes the image at path and drops its alpha channel.
func loadRGBImage(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load image %q", path)
	}

	rgb := imaging.Clone(img)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}
	return rgb, nil
}

// imageFormat returns the encoding for a file name or a format name such as "png" or "jpg".
// Anything that is not PNG is JPEG.
func imageFormat(nameOrExt string) (imaging.Format, string) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext("."+nameOrExt), "."))
	if ext == "png" {
		return imaging.PNG, "png"
	}
	return imaging.JPEG, "jpeg"
}

// encodeImage encodes img with the format for nameOrExt.
func encodeImage(w io.Writer, img image.Image, nameOrExt string, jpegQuality int) error {
	f, _ := imageFormat(nameOrExt)
	return imaging.Encode(w, img, f, imaging.JPEGQuality(jpegQuality))
}

// encodeImageBytes is encodeImage into a new buffer.
func encodeImageBytes(img image.Image, nameOrExt string, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeImage(&buf, img, nameOrExt, jpegQuality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// saveImage saves the image to path, encoding it as PNG or JPEG, depending on the file extension of
// path.
func saveImage(path string, img image.Image, jpegQuality int) error {
	return writeFile(path, func(w io.Writer) error {
		return encodeImage(w, img, path, jpegQuality)
	})
}

// fileSize returns the size of the file at path, or 0 if it cannot be determined.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
