package ocr

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	id    string
	text  string
	conf  float64
	err   error
	delay time.Duration
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Extract(ctx context.Context, _ []byte, _ string) (Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{ProviderID: f.id, Text: f.text, Confidence: f.conf}, nil
}

func TestExtractCollectsAllSuccesses(t *testing.T) {
	providers := []Provider{
		&fakeProvider{id: "a", text: "first reading", conf: 0.8},
		&fakeProvider{id: "b", text: "second reading", conf: 0.6},
	}

	got := Extract(context.Background(), providers, []byte("img"), "en", time.Second)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ProviderID != "a" || got[1].ProviderID != "b" {
		t.Errorf("results out of declaration order: %+v", got)
	}
}

func TestExtractSkipsFailedProviders(t *testing.T) {
	providers := []Provider{
		&fakeProvider{id: "a", err: errors.New("boom")},
		&fakeProvider{id: "b", text: "survivor", conf: 0.5},
		&fakeProvider{id: "c", err: ErrNoText},
	}

	got := Extract(context.Background(), providers, []byte("img"), "en", time.Second)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].ProviderID != "b" {
		t.Errorf("wrong survivor: %+v", got[0])
	}
}

func TestExtractAllFail(t *testing.T) {
	providers := []Provider{
		&fakeProvider{id: "a", err: errors.New("boom")},
	}
	got := Extract(context.Background(), providers, []byte("img"), "en", time.Second)
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestExtractTimesOutSlowProvider(t *testing.T) {
	providers := []Provider{
		&fakeProvider{id: "slow", text: "too late", conf: 0.9, delay: 500 * time.Millisecond},
		&fakeProvider{id: "fast", text: "in time", conf: 0.5},
	}

	got := Extract(context.Background(), providers, []byte("img"), "en", 50*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].ProviderID != "fast" {
		t.Errorf("slow provider should have been cut off: %+v", got)
	}
}

func TestEstimateConfidence(t *testing.T) {
	clean := estimateConfidence("The mitochondria is the powerhouse of the cell.")
	noisy := estimateConfidence("Th3 m1t*chondr¡a ¡$ th€ p0w€rh0u$€")
	if clean <= noisy {
		t.Errorf("clean text (%v) should score above noisy text (%v)", clean, noisy)
	}
	if short := estimateConfidence("ok"); short >= clean {
		t.Errorf("very short output (%v) should be penalized below %v", short, clean)
	}
	if estimateConfidence("") != 0 {
		t.Error("empty text should score 0")
	}
}
