// Package transform applies the conditional image pipeline to uploaded
// files: normalize, resize, crop, then re-encode in the requested format.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage wraps any decode failure: the bytes are either
// corrupt or not a raster format this service understands.
var ErrUnsupportedImage = errors.New("transform: unsupported or corrupt image")

// Geometry constants of the pipeline. Resize shrinks to at most MaxWidth;
// crop produces a fixed 16:9 frame at MaxWidth.
const (
	MaxWidth   = 1280
	CropWidth  = 1280
	CropHeight = 720 // round(1280 * 9 / 16)
)

// Options selects the stages and the output encoding. Zero value means
// "encode as JPEG at high fidelity, touch nothing else".
type Options struct {
	Resize    bool
	Compress  bool
	Normalize bool
	Crop      bool
	Format    string // jpg | jpeg | png | webp; anything else encodes as JPEG
}

// Result is one transformed image written to the processed directory.
type Result struct {
	Bytes    []byte
	Filename string
	URL      string
	Format   string // normalized extension actually used
	Width    int    // final geometry after resize/crop
	Height   int
}

// Transformer writes pipeline outputs into a processed directory and
// builds their public URLs.
type Transformer struct {
	Dir       string // processed output directory
	URLPrefix string // public mount of Dir, e.g. "/uploads/processed"

	// now is swappable in tests so generated names are predictable.
	now func() time.Time
}

// New creates a Transformer writing into dir, served under urlPrefix.
func New(dir, urlPrefix string) *Transformer {
	return &Transformer{Dir: dir, URLPrefix: urlPrefix, now: time.Now}
}

// Now replaces the time source used for generated filenames.
func (t *Transformer) Now(now func() time.Time) { t.now = now }

// Apply runs the pipeline on data and persists the encoded output.
// Stage order is fixed; each stage runs only when selected. Crop is
// evaluated independently of resize and supersedes its geometry, so when
// both are requested the resize result is a discarded intermediate. That
// matches the recorded behavior of the previous upload server and is kept
// deliberately.
func (t *Transformer) Apply(data []byte, baseName string, opts Options) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	if opts.Normalize {
		img = Normalize(img)
	}
	if opts.Resize {
		img = ShrinkToWidth(img, MaxWidth)
	}
	if opts.Crop {
		img = CoverCrop(img, CropWidth, CropHeight)
	}

	ext := normalizeFormat(opts.Format)
	encoded, err := encode(img, ext, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}

	name := strconv.FormatInt(t.now().UnixMilli(), 10) + "_" + SanitizeBase(baseName) + "." + ext
	path := filepath.Join(t.Dir, name)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	return &Result{
		Bytes:    encoded,
		Filename: name,
		URL:      t.URLPrefix + "/" + name,
		Format:   ext,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}, nil
}

// normalizeFormat maps the requested format to the output extension,
// case-insensitively. jpeg collapses to jpg; unknown values fall back
// to jpg.
func normalizeFormat(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "png"
	case "webp":
		return "webp"
	case "jpg", "jpeg":
		return "jpg"
	default:
		return "jpg"
	}
}

// encode serializes img in the requested format. Compression is a binary
// preset per format: high-compression (JPEG q80, PNG best, WebP q80) or
// high-fidelity (JPEG q95, PNG stored, WebP q95).
func encode(img image.Image, ext string, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	switch ext {
	case "png":
		level := png.NoCompression
		if compress {
			level = png.BestCompression
		}
		enc := png.Encoder{CompressionLevel: level}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "webp":
		quality := float32(95)
		if compress {
			quality = 80
		}
		if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
			return nil, err
		}
	default: // jpg
		quality := 95
		if compress {
			quality = 80
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
