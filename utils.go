package cocodet

import (
	"io"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sensorable/cocodet/internal/logger"
)

// log returns the package logger.
func log() *zap.SugaredLogger {
	return logger.S()
}

// requireDir returns an error unless path exists and is a directory.
func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "path %q does not exist", path)
	}
	if !info.IsDir() {
		return errors.Errorf("path %q is not a directory", path)
	}
	return nil
}

// requireFile returns an error unless path exists and is not a directory.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "file %q does not exist", path)
	}
	if info.IsDir() {
		return errors.Errorf("file %q is a directory", path)
	}
	return nil
}

// readFile uses ioutil.ReadAll to read the file at path.
func readFile(path string) (data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	data, err = ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// writeFile creates the file at path and hands it to write. Close errors are reported unless write
// failed first.
func writeFile(path string, write func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create file %q", path)
	}
	defer closeWithErrCheck(f, &err)

	if err := write(f); err != nil {
		return errors.Wrapf(err, "cannot write file %q", path)
	}
	return nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
