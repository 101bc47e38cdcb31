package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scriptmark/scriptmark/internal/model"
)

// chatStub serves an OpenAI-compatible chat completion endpoint that
// always returns the given message content.
func chatStub(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "stub failure", status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func externalAgainst(srv *httptest.Server, fallback bool) *External {
	return NewExternal(ExternalConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL + "/v1",
		Model:           "test-model",
		Subject:         "biology",
		FallbackOnError: fallback,
	})
}

var externalQuestion = model.Question{
	Number:   2,
	Text:     "Describe osmosis.",
	MaxScore: 8,
	Keywords: []model.Keyword{{Word: "osmosis", Weight: 2, Required: true}},
}

func TestExternalParsesGrade(t *testing.T) {
	srv := chatStub(t, `{"score": 6.5, "confidence": 0.85, "feedback": "Good coverage of the mechanism."}`, http.StatusOK)
	defer srv.Close()

	got := externalAgainst(srv, false).Evaluate(context.Background(), externalQuestion,
		"Osmosis is the movement of water across a membrane.")

	if got.Score != 6.5 {
		t.Errorf("score = %v, want 6.5", got.Score)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got.Confidence)
	}
	if !strings.Contains(got.Feedback, "Good coverage") {
		t.Errorf("feedback = %q", got.Feedback)
	}
}

func TestExternalClampsScore(t *testing.T) {
	srv := chatStub(t, `{"score": 99, "confidence": 0.9, "feedback": "x"}`, http.StatusOK)
	defer srv.Close()

	got := externalAgainst(srv, false).Evaluate(context.Background(), externalQuestion, "An answer.")
	if got.Score != 8 {
		t.Errorf("score = %v, want clamped to max 8", got.Score)
	}
}

func TestExternalFailureAbstains(t *testing.T) {
	srv := chatStub(t, "", http.StatusInternalServerError)
	defer srv.Close()

	got := externalAgainst(srv, false).Evaluate(context.Background(), externalQuestion, "An answer.")
	if !got.Abstained() {
		t.Errorf("provider failure without fallback should abstain, got %+v", got)
	}
}

func TestExternalFailureFallsBack(t *testing.T) {
	srv := chatStub(t, "", http.StatusInternalServerError)
	defer srv.Close()

	got := externalAgainst(srv, true).Evaluate(context.Background(), externalQuestion, "An answer.")
	if want := fallbackFraction * 8; got.Score != want {
		t.Errorf("fallback score = %v, want %v", got.Score, want)
	}
	if got.Confidence != fallbackConfidence {
		t.Errorf("fallback confidence = %v, want %v", got.Confidence, fallbackConfidence)
	}
}

func TestExternalTimeoutBoundsStalledEndpoint(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := NewExternal(ExternalConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	got := e.Evaluate(context.Background(), externalQuestion, "An answer.")
	elapsed := time.Since(start)

	if !got.Abstained() {
		t.Errorf("stalled endpoint should abstain, got %+v", got)
	}
	// Well under the server's stall: the call must be bounded by the
	// configured timeout, not by the remote end.
	if elapsed > 2*time.Second {
		t.Errorf("Evaluate took %v, want it cut off by the timeout", elapsed)
	}
}

func TestExternalTimeoutFallsBackWhenConfigured(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := NewExternal(ExternalConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL + "/v1",
		Timeout:         50 * time.Millisecond,
		FallbackOnError: true,
	})

	got := e.Evaluate(context.Background(), externalQuestion, "An answer.")
	if want := fallbackFraction * 8; got.Score != want {
		t.Errorf("score = %v, want fallback %v", got.Score, want)
	}
}

func TestExternalUnparseableReplyFallsBack(t *testing.T) {
	srv := chatStub(t, "I would give this answer a solid 6 out of 8.", http.StatusOK)
	defer srv.Close()

	// A reply that arrived but is not the requested JSON shape earns
	// the conservative fallback even with fallback disabled.
	got := externalAgainst(srv, false).Evaluate(context.Background(), externalQuestion, "An answer.")
	if want := fallbackFraction * 8; got.Score != want {
		t.Errorf("score = %v, want fallback %v", got.Score, want)
	}
}

func TestExternalUnconfiguredAbstains(t *testing.T) {
	e := NewExternal(ExternalConfig{})
	got := e.Evaluate(context.Background(), externalQuestion, "An answer.")
	if !got.Abstained() {
		t.Errorf("unconfigured grader should abstain, got %+v", got)
	}
}

func TestExternalEmptyAnswerAbstains(t *testing.T) {
	srv := chatStub(t, `{"score": 5, "confidence": 0.9, "feedback": "x"}`, http.StatusOK)
	defer srv.Close()

	got := externalAgainst(srv, true).Evaluate(context.Background(), externalQuestion, "   ")
	if !got.Abstained() {
		t.Errorf("empty answer should abstain, got %+v", got)
	}
}
