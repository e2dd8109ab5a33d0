package imgmeta

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestExtractEmptyInput(t *testing.T) {
	if got := Extract(nil); got != nil {
		t.Errorf("Extract(nil) = %+v, want nil", got)
	}
	if got := Extract([]byte{}); got != nil {
		t.Errorf("Extract(empty) = %+v, want nil", got)
	}
}

func TestExtractGarbageInput(t *testing.T) {
	if got := Extract([]byte("definitely not an image")); got != nil {
		t.Errorf("Extract(garbage) = %+v, want nil", got)
	}
}

func TestExtractTaglessImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if got := Extract(buf.Bytes()); got != nil {
		t.Errorf("Extract(plain png) = %+v, want nil", got)
	}
}

func TestTagValueString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{[]string{"first", "second"}, "first"},
		{[]string{}, ""},
		{[]any{"boxed"}, "boxed"},
		{[]any{42}, ""},
		{42, ""},
		{nil, ""},
	}
	for _, c := range cases {
		if got := tagValueString(c.in); got != c.want {
			t.Errorf("tagValueString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
