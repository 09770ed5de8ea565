package license

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kelda/licensemaker/pkg/errors"
	"github.com/kelda/licensemaker/pkg/names"
)

// maxAttempts bounds the search for a free file name when several licenses
// for one email land in the same second.
const maxAttempts = 100

// FileWriter stores each license as its own file in Dir. Existing files are
// never overwritten.
type FileWriter struct {
	Fs  afero.Fs
	Dir string
}

func NewFileWriter(fs afero.Fs, dir string) FileWriter {
	return FileWriter{Fs: fs, Dir: dir}
}

// EnsureDir creates the output directory if it's missing.
func (w FileWriter) EnsureDir() error {
	if err := w.Fs.MkdirAll(w.Dir, 0755); err != nil {
		return errors.WithKind(errors.IOFailure,
			errors.WithContext("create license directory", err))
	}
	return nil
}

func (w FileWriter) Write(issuedAt int64, email, license string) (string, error) {
	if err := w.EnsureDir(); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		path := filepath.Join(w.Dir, names.LicenseFile(issuedAt, email, attempt))
		exists, err := afero.Exists(w.Fs, path)
		if err != nil {
			return "", errors.WithKind(errors.IOFailure,
				errors.WithContext("stat "+path, err))
		}
		if exists {
			log.WithField("path", path).Warn("License file already exists, trying the next name")
			continue
		}

		written, err := w.create(path, license)
		if err != nil {
			return "", errors.WithKind(errors.IOFailure,
				errors.WithContext("write license", err))
		}
		if written {
			return path, nil
		}
	}

	return "", errors.WithKind(errors.IOFailure, errors.NewFriendlyError(
		"Gave up after %d licenses for %s at %d. Retry in a second.", maxAttempts, email, issuedAt))
}

// create writes license to path unless another writer got there first.
func (w FileWriter) create(path, license string) (bool, error) {
	f, err := w.Fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if _, err := f.WriteString(license); err != nil {
		return false, err
	}
	return true, f.Close()
}
