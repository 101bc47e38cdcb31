package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Remote calls a self-hosted recognition service over HTTP. The
// service accepts a base64 image plus language hint and returns the
// extracted text with its own confidence estimate.
type Remote struct {
	endpoint string
	client   *http.Client
}

// NewRemote builds the remote provider for the given endpoint URL.
func NewRemote(endpoint string) (*Remote, error) {
	if endpoint == "" {
		return nil, ErrProviderUnavailable
	}
	return &Remote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (r *Remote) ID() string { return "remote" }

type remoteRequest struct {
	ImageBase64 string `json:"image_base64"`
	Lang        string `json:"lang,omitempty"`
}

type remoteResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (r *Remote) Extract(ctx context.Context, image []byte, langHint string) (Result, error) {
	body, err := json.Marshal(remoteRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Lang:        langHint,
	})
	if err != nil {
		return Result{}, fmt.Errorf("remote ocr encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("remote ocr build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("remote ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("remote ocr: unexpected status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("remote ocr decode response: %w", err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return Result{}, ErrNoText
	}

	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Result{ProviderID: r.ID(), Text: text, Confidence: conf}, nil
}
