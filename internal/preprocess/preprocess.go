// Package preprocess normalizes scanned answer-sheet images before
// text extraction. Phone photos and flatbed scans arrive with wildly
// different contrast, noise, and resolution; the pipeline here evens
// that out so extraction quality is less dependent on capture quality.
package preprocess

import (
	"bytes"
	"log/slog"

	"github.com/disintegration/imaging"
)

// maxWidth is the ceiling for page images handed to extraction.
// Wider scans are downscaled proportionally; beyond this width the
// extra pixels cost time without improving recognition.
const maxWidth = 2000

// Page runs the cleanup pipeline on an encoded page image and returns
// the result re-encoded as PNG. The steps are grayscale conversion,
// contrast boost, light denoising, sharpening, and a conditional
// downscale for oversized scans.
//
// Preprocessing is best-effort: if the input cannot be decoded or the
// result cannot be encoded, the original bytes are returned unchanged
// so extraction still gets a chance at the raw image.
func Page(data []byte) []byte {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("image decode failed, passing through", "error", err)
		return data
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 20)
	img = imaging.Blur(img, 0.5)
	img = imaging.Sharpen(img, 1.0)

	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		slog.Warn("image encode failed, passing through", "error", err)
		return data
	}
	return buf.Bytes()
}
