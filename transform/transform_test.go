package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / (w - 1))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return cfg.Width, cfg.Height
}

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	tr := New(t.TempDir(), "/uploads/processed")
	tr.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return tr
}

func TestApplyResizeBoundsWidth(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(2560, 1440))

	res, err := tr.Apply(src, "wide", Options{Resize: true, Format: "png"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	w, h := decodeDims(t, res.Bytes)
	if w != 1280 || h != 720 {
		t.Errorf("resized dims = %dx%d, want 1280x720", w, h)
	}
}

func TestApplyResizeNeverEnlarges(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(640, 480))

	res, err := tr.Apply(src, "small", Options{Resize: true, Format: "png"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	w, h := decodeDims(t, res.Bytes)
	if w != 640 || h != 480 {
		t.Errorf("dims = %dx%d, want 640x480 unchanged", w, h)
	}
}

func TestApplyCropSupersedesResize(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(3000, 1000))

	res, err := tr.Apply(src, "pano", Options{Resize: true, Crop: true, Format: "png"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	w, h := decodeDims(t, res.Bytes)
	if w != CropWidth || h != CropHeight {
		t.Errorf("cropped dims = %dx%d, want %dx%d", w, h, CropWidth, CropHeight)
	}
	if res.Width != CropWidth || res.Height != CropHeight {
		t.Errorf("result dims = %dx%d, want %dx%d", res.Width, res.Height, CropWidth, CropHeight)
	}
}

func TestApplyCropFromSmallInput(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(100, 100))

	res, err := tr.Apply(src, "tiny", Options{Crop: true, Format: "png"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	w, h := decodeDims(t, res.Bytes)
	if w != CropWidth || h != CropHeight {
		t.Errorf("cropped dims = %dx%d, want %dx%d", w, h, CropWidth, CropHeight)
	}
}

func TestApplyPassthroughKeepsDimensions(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(50, 50))

	res, err := tr.Apply(src, "asis", Options{Format: "webp"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	w, h := decodeDims(t, res.Bytes)
	if w != 50 || h != 50 {
		t.Errorf("dims = %dx%d, want 50x50", w, h)
	}
	if res.Format != "webp" {
		t.Errorf("format = %q, want webp", res.Format)
	}
}

func TestApplyFilenameAndURL(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(10, 10))

	res, err := tr.Apply(src, "my photo.png", Options{Format: "jpeg"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "1700000000000_my_photopng.jpg"
	if res.Filename != want {
		t.Errorf("filename = %q, want %q", res.Filename, want)
	}
	if res.URL != "/uploads/processed/"+want {
		t.Errorf("url = %q, want %q", res.URL, "/uploads/processed/"+want)
	}
	if _, err := os.Stat(filepath.Join(tr.Dir, want)); err != nil {
		t.Errorf("output file not written: %v", err)
	}
}

func TestApplyCompressShrinksJPEG(t *testing.T) {
	tr := newTestTransformer(t)
	src := encodePNG(t, gradient(400, 300))

	hi, err := tr.Apply(src, "a", Options{Format: "jpg"})
	if err != nil {
		t.Fatalf("Apply fidelity: %v", err)
	}
	lo, err := tr.Apply(src, "b", Options{Format: "jpg", Compress: true})
	if err != nil {
		t.Fatalf("Apply compressed: %v", err)
	}
	if len(lo.Bytes) >= len(hi.Bytes) {
		t.Errorf("compressed size %d >= fidelity size %d", len(lo.Bytes), len(hi.Bytes))
	}
}

func TestApplyRejectsNonImage(t *testing.T) {
	tr := newTestTransformer(t)
	if _, err := tr.Apply([]byte("not an image"), "x", Options{}); err == nil {
		t.Fatal("Apply on garbage bytes: got nil error")
	}
}

func TestNormalizeStretchesContrast(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	for x := 0; x < 4; x++ {
		v := uint8(100 + x*10) // narrow 100..130 band
		img.SetRGBA(x, 0, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	out := Normalize(img)
	r0, _, _, _ := out.At(0, 0).RGBA()
	r3, _, _, _ := out.At(3, 0).RGBA()
	if r0 != 0 {
		t.Errorf("darkest pixel = %d, want 0", r0)
	}
	if r3>>8 != 255 {
		t.Errorf("brightest pixel = %d, want 255", r3>>8)
	}
}

func TestNormalizeFlatImageUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	if out := Normalize(img); out != image.Image(img) {
		t.Error("flat image was reallocated, want input returned as-is")
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"jpg", "jpg"},
		{"jpeg", "jpg"},
		{"png", "png"},
		{"webp", "webp"},
		{"gif", "jpg"},
		{"", "jpg"},
		{"PNG", "png"},
		{"WebP", "webp"},
		{"JPEG", "jpg"},
		{"TIFF", "jpg"},
	}
	for _, c := range cases {
		if got := normalizeFormat(c.in); got != c.want {
			t.Errorf("normalizeFormat(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"holiday.png", "holidaypng"},
		{"my photo", "my_photo"},
		{"  spaced\tout ", "_spaced_out_"},
		{"über-café", "ber-caf"},
		{"a/b\\c", "abc"},
		{"safe_name-1", "safe_name-1"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, c := range cases {
		if got := SanitizeBase(c.in); got != c.want {
			t.Errorf("SanitizeBase(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
