package imageproc

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers to create in-memory test images
// ---------------------------------------------------------------------------

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return img
}

func createTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func createTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func createTestGIF(t *testing.T, w, h int) []byte {
	t.Helper()
	palette := color.Palette{color.White, color.RGBA{R: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

// forgedPNG returns a tiny PNG whose IHDR claims a w x h RGBA canvas but
// whose pixel data is a single byte.
func forgedPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
	chunk := func(typ string, data []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data)))
		buf.Write(n[:])
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(body))
		buf.Write(n[:])
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk("IHDR", ihdr)
	chunk("IDAT", []byte{0})
	chunk("IEND", nil)
	return buf.Bytes()
}

// decodeJPEG decodes normalized output as JPEG specifically and returns its dimensions.
func decodeJPEG(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

// ---------------------------------------------------------------------------
// DetectFormat
// ---------------------------------------------------------------------------

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "jpeg", DetectFormat(createTestJPEG(t, 2, 2)))
	assert.Equal(t, "png", DetectFormat(createTestPNG(t, 2, 2)))
	assert.Equal(t, "gif", DetectFormat(createTestGIF(t, 2, 2)))
	assert.Equal(t, "webp", DetectFormat([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.Equal(t, "bmp", DetectFormat([]byte("BM\x00\x00")))
	assert.Equal(t, "tiff", DetectFormat([]byte{'I', 'I', 0x2A, 0x00, 0x08}))
	assert.Equal(t, "", DetectFormat([]byte("hello world")))
	assert.Equal(t, "", DetectFormat(nil))
}

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize_LandscapeJPEG(t *testing.T) {
	res, err := Normalize(createTestJPEG(t, 2000, 1500), "image/jpeg", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, OutputContentType, res.ContentType)
	assert.Equal(t, "jpeg", res.SourceFormat)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 600, res.Height)

	w, h := decodeJPEG(t, res.Data)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestNormalize_PortraitBoundsLongEdge(t *testing.T) {
	res, err := Normalize(createTestPNG(t, 500, 1000), "image/png", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 400, res.Width)
	assert.Equal(t, 800, res.Height)
}

func TestNormalize_NoUpscale(t *testing.T) {
	res, err := Normalize(createTestPNG(t, 120, 80), "image/png", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 120, res.Width)
	assert.Equal(t, 80, res.Height)
	assert.Equal(t, "png", res.SourceFormat)

	// PNG input is re-encoded as JPEG.
	assert.Equal(t, "jpeg", DetectFormat(res.Data))
	w, h := decodeJPEG(t, res.Data)
	assert.Equal(t, 120, w)
	assert.Equal(t, 80, h)
}

func TestNormalize_GIFReencoded(t *testing.T) {
	res, err := Normalize(createTestGIF(t, 900, 300), "", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", DetectFormat(res.Data))
	assert.Equal(t, 800, res.Width)
	assert.LessOrEqual(t, res.Height, 300)
}

func TestNormalize_ExactBoundaryUnchanged(t *testing.T) {
	res, err := Normalize(createTestJPEG(t, 800, 800), "image/jpeg", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 800, res.Height)
}

func TestNormalize_CustomOptions(t *testing.T) {
	res, err := Normalize(createTestJPEG(t, 400, 200), "image/jpeg", Options{MaxDimension: 100, Quality: 50})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 50, res.Height)
}

func TestNormalize_ZeroOptionsFallBackToDefaults(t *testing.T) {
	res, err := Normalize(createTestJPEG(t, 1600, 400), "", Options{})
	require.NoError(t, err)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 200, res.Height)
}

func TestNormalize_DeterministicDimensions(t *testing.T) {
	data := createTestPNG(t, 1234, 567)
	a, err := Normalize(data, "image/png", DefaultOptions())
	require.NoError(t, err)
	b, err := Normalize(data, "image/png", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a.Width, b.Width)
	assert.Equal(t, a.Height, b.Height)
	assert.Equal(t, a.ContentType, b.ContentType)
}

func TestNormalize_OctetStreamIsSniffed(t *testing.T) {
	_, err := Normalize(createTestJPEG(t, 10, 10), "application/octet-stream", DefaultOptions())
	assert.NoError(t, err)
}

func TestNormalize_TextRejected(t *testing.T) {
	_, err := Normalize([]byte("just some notes, not an image"), "text/plain", DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Normalize([]byte("just some notes, not an image"), "", DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalize_DeclaredNonImageRejected(t *testing.T) {
	// Valid image bytes but an explicit non-image declaration.
	_, err := Normalize(createTestJPEG(t, 10, 10), "application/pdf", DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalize_TruncatedImageRejected(t *testing.T) {
	data := createTestPNG(t, 50, 50)
	_, err := Normalize(data[:20], "image/png", DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalize_HugeCanvasRejectedBeforeDecode(t *testing.T) {
	data := forgedPNG(40000, 40000)
	require.Less(t, len(data), 100)

	_, err := Normalize(data, "image/png", DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "40000x40000")
}

func TestNormalize_MaxPixelsOption(t *testing.T) {
	data := createTestPNG(t, 100, 100)

	_, err := Normalize(data, "image/png", Options{MaxPixels: 9_999})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	res, err := Normalize(data, "image/png", Options{MaxPixels: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Width)
}
