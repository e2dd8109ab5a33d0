// Package imghash computes the 64-bit average-hash fingerprint used for
// near-duplicate detection of ingested images.
//
// The algorithm is fixed wire-format: fingerprints are compared as strings
// against entries written by earlier versions of the service, so the
// resample grid, the >= mean threshold, and the nibble packing must not
// change.
package imghash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDecode wraps any failure to decode the input as a raster image.
var ErrDecode = errors.New("imghash: undecodable image")

const gridSize = 8

// Fingerprint returns the 16-character lowercase hex average hash of the
// image encoded in data. It is a pure function of pixel content: identical
// 8x8 grayscale resamples always produce identical fingerprints, whatever
// the original format or dimensions.
func Fingerprint(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FingerprintImage(img), nil
}

// FingerprintImage hashes an already-decoded image.
func FingerprintImage(img image.Image) string {
	samples := resample(img)

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := 0.0
	if len(samples) > 0 {
		mean = sum / float64(len(samples))
	}

	// Row-major bitmap, 4 bits per hex nibble.
	hex := make([]byte, 0, len(samples)/4)
	const digits = "0123456789abcdef"
	for i := 0; i < len(samples); i += 4 {
		nibble := 0
		for j := 0; j < 4; j++ {
			nibble <<= 1
			if float64(samples[i+j]) >= mean {
				nibble |= 1
			}
		}
		hex = append(hex, digits[nibble])
	}
	return string(hex)
}

// resample converts img to single-channel grayscale on a fixed 8x8 grid.
// Each dimension is stretched or squashed independently; aspect ratio is
// deliberately ignored.
func resample(img image.Image) []uint8 {
	dst := image.NewGray(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	samples := make([]uint8, 0, gridSize*gridSize)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			samples = append(samples, dst.GrayAt(x, y).Y)
		}
	}
	return samples
}
