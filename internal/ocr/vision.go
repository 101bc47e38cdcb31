package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Vision extracts text with a multimodal chat model. It is the
// strongest provider for messy handwriting but requires an API key,
// so deployments without one simply leave it out of the provider list.
type Vision struct {
	client *openai.Client
	model  string
}

// NewVision builds the vision provider. baseURL may be empty for the
// default API endpoint; model may be empty for a sensible default.
func NewVision(apiKey, baseURL, model string) (*Vision, error) {
	if apiKey == "" {
		return nil, ErrProviderUnavailable
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Vision{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (v *Vision) ID() string { return "vision" }

func (v *Vision) Extract(ctx context.Context, image []byte, langHint string) (Result, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	prompt := "Transcribe all text visible in this scanned exam page, " +
		"including handwriting. Preserve line breaks and question numbering " +
		"exactly as written. Return only the transcribed text with no commentary."
	if langHint != "" && langHint != "en" {
		prompt += " The text is primarily in language code " + langHint + "."
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return Result{}, fmt.Errorf("vision extract: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("vision extract: empty response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Result{}, ErrNoText
	}

	// Vision models do not report recognition confidence. They are
	// reliably better than local OCR on handwriting, so a fixed high
	// value keeps them winning consolidation ties.
	return Result{ProviderID: v.ID(), Text: text, Confidence: 0.9}, nil
}
