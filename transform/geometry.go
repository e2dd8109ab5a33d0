package transform

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Normalize stretches the intensity histogram to the full 0..255 range
// (auto-contrast). It runs before any geometric stage so cropping or
// resizing cannot bias the stretch window. A flat image is returned
// unchanged.
func Normalize(img image.Image) image.Image {
	b := img.Bounds()
	lo, hi := uint32(math.MaxUint32), uint32(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			// Luminance window per BT.601, same weights as the stdlib
			// grayscale conversion.
			lum := (299*r + 587*g + 114*bb) / 1000
			if lum < lo {
				lo = lum
			}
			if lum > hi {
				hi = lum
			}
		}
	}
	if hi <= lo {
		return img
	}

	out := image.NewRGBA(b)
	scale := float64(math.MaxUint16) / float64(hi-lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, a := img.At(x, y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(stretch(r, lo, scale) >> 8),
				G: uint8(stretch(g, lo, scale) >> 8),
				B: uint8(stretch(bb, lo, scale) >> 8),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func stretch(v, lo uint32, scale float64) uint32 {
	if v <= lo {
		return 0
	}
	s := float64(v-lo) * scale
	if s > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint32(s)
}

// ShrinkToWidth scales img down so its width is at most maxWidth,
// preserving aspect ratio. Images already narrow enough are returned
// unchanged; this stage never enlarges.
func ShrinkToWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxWidth {
		return img
	}
	newH := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// CoverCrop scales img to cover a width x height frame and center-crops
// the overflow, like a CSS "cover" fit. The output is always exactly
// width x height regardless of the input geometry.
func CoverCrop(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	srcW, srcH := float64(b.Dx()), float64(b.Dy())
	scale := math.Max(float64(width)/srcW, float64(height)/srcH)
	scaledW := int(math.Round(srcW * scale))
	scaledH := int(math.Round(srcH * scale))

	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	offX := (scaledW - width) / 2
	offY := (scaledH - height) / 2
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), scaled, image.Pt(offX, offY), draw.Src)
	return dst
}
