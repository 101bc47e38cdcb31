// Package ocr extracts handwritten and printed text from page images
// using several independent providers, then consolidates the results
// into a single best text with a confidence estimate.
package ocr

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable means the provider is not configured or
	// cannot be reached at all, as opposed to failing on one image.
	ErrProviderUnavailable = errors.New("ocr provider unavailable")

	// ErrNoText means the provider ran but found nothing readable.
	ErrNoText = errors.New("no text recognized")
)

// Result is one provider's reading of a page image.
type Result struct {
	ProviderID string
	Text       string
	Confidence float64 // 0..1
}

// Provider extracts text from a single page image. Implementations
// must honor ctx cancellation and report an estimated confidence for
// whatever text they return.
type Provider interface {
	// ID identifies the provider in logs and stored page records.
	ID() string

	// Extract reads text from an encoded image. langHint is a
	// BCP 47-ish language code ("en", "ru") that providers may use
	// to pick recognition models; it is advisory.
	Extract(ctx context.Context, image []byte, langHint string) (Result, error)
}
