package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(t *testing.T, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("photo", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(MaxUploadSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["photo"][0]
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, x%height, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPhotoStore(t *testing.T) {
	ps, err := NewPhotoStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	t.Run("saved as a fitted jpeg", func(t *testing.T) {
		name, err := ps.Save(fileHeader(t, pngBytes(t, 1600, 400)), "João Conceição")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(name, "joao-conceicao-"), name)
		assert.Equal(t, ".jpg", filepath.Ext(name))

		p, err := ps.Path(name)
		require.NoError(t, err)
		img, err := imaging.Open(p)
		require.NoError(t, err)
		assert.Equal(t, 800, img.Bounds().Dx())
		assert.Equal(t, 200, img.Bounds().Dy())

		require.NoError(t, ps.Delete(name))
		_, err = os.Stat(p)
		assert.True(t, os.IsNotExist(err))
		assert.NoError(t, ps.Delete(name), "deleting twice is fine")
	})

	t.Run("unnamed label", func(t *testing.T) {
		name, err := ps.Save(fileHeader(t, pngBytes(t, 10, 10)), "  ")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(name, "photo-"), name)
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := ps.Save(fileHeader(t, []byte("definitely not an image")), "x")
		assert.Equal(t, ErrInvalidImage, err)
	})

	t.Run("too large", func(t *testing.T) {
		fh := fileHeader(t, pngBytes(t, 10, 10))
		fh.Size = MaxUploadSize + 1
		_, err := ps.Save(fh, "x")
		assert.Equal(t, ErrTooLarge, err)
	})

	t.Run("path traversal refused", func(t *testing.T) {
		for _, name := range []string{"", "../etc/passwd", "a/b.jpg", ".hidden"} {
			_, err := ps.Path(name)
			assert.Equal(t, ErrInvalidName, err, name)
		}
		assert.Equal(t, ErrInvalidName, ps.Delete("../x"))
	})
}
