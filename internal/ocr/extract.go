package ocr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single provider's work on one page.
const DefaultTimeout = 90 * time.Second

// Extract runs every provider against the image concurrently and
// returns the successful results. Provider failures are logged and
// skipped; the page only fails when no provider produces text, which
// is signaled by an empty slice.
func Extract(ctx context.Context, providers []Provider, image []byte, langHint string, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, len(providers))
	ok := make([]bool, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := p.Extract(pctx, image, langHint)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, ErrNoText) {
					level = slog.LevelDebug
				}
				slog.Log(ctx, level, "ocr provider failed", "provider", p.ID(), "error", err)
				return
			}
			results[i] = res
			ok[i] = true
		}(i, p)
	}
	wg.Wait()

	out := make([]Result, 0, len(providers))
	for i := range results {
		if ok[i] {
			out = append(out, results[i])
		}
	}
	return out
}
