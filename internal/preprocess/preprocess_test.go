package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode processed image: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestPageKeepsSmallImageSize(t *testing.T) {
	in := encodePNG(t, 800, 600)
	out := Page(in)

	w, h := decodeSize(t, out)
	if w != 800 || h != 600 {
		t.Errorf("got %dx%d, want 800x600", w, h)
	}
}

func TestPageDownscalesWideImage(t *testing.T) {
	in := encodePNG(t, 4000, 2000)
	out := Page(in)

	w, h := decodeSize(t, out)
	if w != 2000 {
		t.Errorf("width = %d, want 2000", w)
	}
	if h != 1000 {
		t.Errorf("height = %d, want 1000 (aspect preserved)", h)
	}
}

func TestPagePassesThroughUndecodableInput(t *testing.T) {
	in := []byte("not an image at all")
	out := Page(in)

	if !bytes.Equal(out, in) {
		t.Error("undecodable input should be returned unchanged")
	}
}
