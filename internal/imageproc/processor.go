package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"mime"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the WebP decoder with image.Decode
)

// ErrUnsupportedFormat is returned for input that cannot be decoded as an image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

const (
	// OutputContentType is the content type of every normalized image.
	OutputContentType = "image/jpeg"
	// OutputExt is the file extension of every normalized image.
	OutputExt = ".jpg"

	DefaultMaxDimension = 800
	DefaultQuality      = 80
	// DefaultMaxPixels caps the decoded size of an input image. The header is
	// checked before decoding, so a tiny file cannot claim a huge canvas.
	DefaultMaxPixels = 50_000_000
)

// Options controls normalization.
type Options struct {
	// MaxDimension bounds both width and height of the output.
	MaxDimension int
	// Quality is the JPEG quality, 1-100.
	Quality int
	// MaxPixels rejects inputs whose width*height exceeds it.
	MaxPixels int
}

// DefaultOptions returns the 800px / quality 80 normalization.
func DefaultOptions() Options {
	return Options{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality, MaxPixels: DefaultMaxPixels}
}

// Result is a normalized image.
type Result struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
	// SourceFormat is the detected input format, e.g. "png".
	SourceFormat string
}

// DetectFormat inspects the raw bytes and returns the image format:
// "jpeg", "png", "gif", "webp", "bmp", "tiff", or "" if unknown.
func DetectFormat(data []byte) string {
	// JPEG: starts with FF D8 FF
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg"
	}
	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "png"
	}
	// GIF: starts with GIF87a or GIF89a
	if len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))) {
		return "gif"
	}
	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	if len(data) >= 2 && data[0] == 'B' && data[1] == 'M' {
		return "bmp"
	}
	// TIFF: little-endian II*\0 or big-endian MM\0*
	if len(data) >= 4 && (bytes.Equal(data[:4], []byte{'I', 'I', 0x2A, 0x00}) || bytes.Equal(data[:4], []byte{'M', 'M', 0x00, 0x2A})) {
		return "tiff"
	}
	return ""
}

// acceptsDeclaredType reports whether a client-declared content type could
// describe an image. Empty and generic binary types defer to sniffing.
func acceptsDeclaredType(declared string) bool {
	if declared == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return false
	}
	return mediaType == "application/octet-stream" || strings.HasPrefix(mediaType, "image/")
}

// Normalize decodes data, shrinks it to fit within opts.MaxDimension on both
// axes (never enlarging) and re-encodes it as JPEG at opts.Quality.
// Output dimensions depend only on the input dimensions and opts.
func Normalize(data []byte, declaredType string, opts Options) (*Result, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}

	if !acceptsDeclaredType(declaredType) {
		return nil, fmt.Errorf("%w: declared content type %q", ErrUnsupportedFormat, declaredType)
	}

	format := DetectFormat(data)
	if format == "" {
		return nil, fmt.Errorf("%w: unrecognized image data", ErrUnsupportedFormat)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s header: %v", ErrUnsupportedFormat, format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: %s of %dx%d exceeds %d pixels", ErrUnsupportedFormat, format, cfg.Width, cfg.Height, opts.MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnsupportedFormat, format, err)
	}

	img = fitWithin(img, opts.MaxDimension)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	bounds := img.Bounds()
	return &Result{
		Data:         buf.Bytes(),
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		ContentType:  OutputContentType,
		SourceFormat: format,
	}, nil
}

// fitWithin resizes img to fit within limit x limit, preserving aspect ratio.
// Only shrinks, never enlarges.
func fitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	if b.Dx() <= limit && b.Dy() <= limit {
		// Already fits; do not enlarge.
		return img
	}
	return imaging.Fit(img, limit, limit, imaging.Lanczos)
}
