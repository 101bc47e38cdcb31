package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// langMap translates our language hints into tesseract traineddata
// names. Unknown hints fall back to English.
var langMap = map[string]string{
	"en": "eng",
	"ru": "rus",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
}

// Tesseract runs local tesseract via gosseract. A fresh client is
// created per call; gosseract clients are not safe for concurrent use
// and page extraction fans out across goroutines.
type Tesseract struct{}

func NewTesseract() *Tesseract { return &Tesseract{} }

func (t *Tesseract) ID() string { return "tesseract" }

func (t *Tesseract) Extract(ctx context.Context, image []byte, langHint string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	lang, ok := langMap[langHint]
	if !ok {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		return Result{}, fmt.Errorf("tesseract set language %s: %w", lang, err)
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return Result{}, fmt.Errorf("tesseract set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("tesseract extract: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrNoText
	}

	return Result{
		ProviderID: t.ID(),
		Text:       text,
		Confidence: estimateConfidence(text),
	}, nil
}

// estimateConfidence scores raw tesseract output by how clean it
// looks. Tesseract's own per-word confidences are not exposed through
// the plain Text call, so this heuristic stands in: mostly-alphanumeric
// output with few garbage glyphs scores high, noise scores low.
func estimateConfidence(text string) float64 {
	if text == "" {
		return 0
	}

	var clean, total int
	for _, r := range text {
		total++
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == ' ', r == '\n', r == '\t',
			r == '.', r == ',', r == ';', r == ':', r == '?', r == '!',
			r == '(', r == ')', r == '-', r == '\'', r == '"', r == '%', r == '/':
			clean++
		case r >= 0x0400 && r <= 0x04FF: // Cyrillic
			clean++
		}
	}
	if total == 0 {
		return 0
	}

	conf := float64(clean) / float64(total)
	// Very short output is usually a misread fragment.
	if len(strings.Fields(text)) < 3 {
		conf *= 0.6
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}
