// Package media stores uploaded student photos on disk.
package media

import (
	"image"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

const (
	maxSide     = 800
	jpegQuality = 85
	// MaxUploadSize bounds the accepted photo size in bytes.
	MaxUploadSize = 5 << 20
)

var (
	// errors
	ErrTooLarge     = errors.New("photo is too large")
	ErrInvalidImage = errors.New("photo is not a valid image")
	ErrInvalidName  = errors.New("invalid file name")
)

type PhotoStore struct {
	dir string
}

func NewPhotoStore(dir string) (*PhotoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload dir")
	}
	return &PhotoStore{dir: dir}, nil
}

// Save decodes the uploaded image, fits it into 800x800 and writes it as a JPEG named after `label`.
// It returns the stored file name.
func (ps *PhotoStore) Save(fh *multipart.FileHeader, label string) (string, error) {
	if fh.Size > MaxUploadSize {
		return "", ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer func() { _ = f.Close() }()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return "", ErrInvalidImage
	}
	return ps.save(img, label)
}

func (ps *PhotoStore) save(img image.Image, label string) (string, error) {
	img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	slug := core.Slugify(label)
	if slug == "" {
		slug = "photo"
	}
	name := slug + "-" + uuid.NewString()[:8] + ".jpg"
	if err := imaging.Save(img, filepath.Join(ps.dir, name), imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", errors.Wrap(err, "writing photo")
	}
	return name, nil
}

// Path resolves a stored file name, refusing anything that is not a plain name.
func (ps *PhotoStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(ps.dir, name), nil
}

// Delete removes a stored photo; a missing file is not an error.
func (ps *PhotoStore) Delete(name string) error {
	p, err := ps.Path(name)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing photo")
	}
	return nil
}
