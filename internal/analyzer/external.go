package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
)

// External asks a chat model to grade the answer against the rubric.
// It is the only analyzer that understands meaning rather than word
// overlap, and the only one that can fail at runtime; failures either
// abstain or fall back to a conservative heuristic score depending on
// configuration.
type External struct {
	client   *openai.Client
	model    string
	subject  string
	fallback bool
	timeout  time.Duration
}

// ExternalConfig wires the external grader.
type ExternalConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Subject string
	// FallbackOnError substitutes a heuristic score when the model
	// call fails, instead of abstaining.
	FallbackOnError bool
	// Timeout bounds one grading call. Zero means DefaultTimeout; a
	// stalled model endpoint must never hang a marking run.
	Timeout time.Duration
}

// DefaultTimeout bounds a grading call when no timeout is configured.
const DefaultTimeout = 90 * time.Second

// Fallback values used when the model call fails but a score is still
// wanted. Deliberately conservative: credit without certainty.
const (
	fallbackFraction   = 0.7
	fallbackConfidence = 0.7
)

func NewExternal(cfg ExternalConfig) *External {
	e := &External{
		model:    cfg.Model,
		subject:  cfg.Subject,
		fallback: cfg.FallbackOnError,
		timeout:  cfg.Timeout,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if cfg.APIKey != "" {
		c := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		e.client = openai.NewClientWithConfig(c)
	}
	if e.model == "" {
		e.model = openai.GPT4oMini
	}
	return e
}

func (e *External) Name() string { return NameExternal }

var errUnparseable = errors.New("unparseable grade reply")

// gradeReply is the JSON shape the model is instructed to return.
type gradeReply struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Feedback   string  `json:"feedback"`
}

func (e *External) Evaluate(ctx context.Context, q model.Question, answer string) model.AnalyzerResult {
	if e.client == nil {
		return abstain(e.Name())
	}
	if strings.TrimSpace(answer) == "" {
		return abstain(e.Name())
	}

	reply, err := e.grade(ctx, q, answer)
	if err != nil {
		slog.Warn("external grader failed", "question", q.Number, "error", err)
		// A reply that arrived but could not be parsed still earns the
		// conservative fallback score; an unreachable model abstains
		// unless fallback is configured.
		if !e.fallback && !errors.Is(err, errUnparseable) {
			return abstain(e.Name())
		}
		return model.AnalyzerResult{
			Analyzer:   e.Name(),
			Score:      fallbackFraction * float64(q.MaxScore),
			Confidence: fallbackConfidence,
			Feedback:   i18n.T(ctx, "ExternalUnavailable"),
		}
	}

	score := reply.Score
	if score < 0 {
		score = 0
	}
	if score > float64(q.MaxScore) {
		score = float64(q.MaxScore)
	}
	conf := reply.Confidence
	if conf <= 0 || conf > 1 {
		conf = fallbackConfidence
	}

	return model.AnalyzerResult{
		Analyzer:   e.Name(),
		Score:      score,
		Confidence: conf,
		Feedback:   reply.Feedback,
		Raw:        reply.Feedback,
	}
}

func (e *External) grade(ctx context.Context, q model.Question, answer string) (gradeReply, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: gradePrompt(q, answer)},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return gradeReply{}, fmt.Errorf("grade request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return gradeReply{}, fmt.Errorf("grade request: empty response")
	}

	var reply gradeReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return gradeReply{}, fmt.Errorf("%w: %v", errUnparseable, err)
	}
	return reply, nil
}

func (e *External) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are an experienced examiner grading handwritten exam answers")
	if e.subject != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.subject)
	}
	sb.WriteString(". The answer text comes from automatic transcription of handwriting, ")
	sb.WriteString("so tolerate spelling noise and transcription artifacts. ")
	sb.WriteString("Grade strictly against the rubric provided. ")
	sb.WriteString(`Respond with JSON: {"score": <number>, "confidence": <0..1>, "feedback": "<one or two sentences for the student>"}.`)
	return sb.String()
}

func gradePrompt(q model.Question, answer string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question %d (max score %d): %s\n\n", q.Number, q.MaxScore, q.Text)

	if len(q.Keywords) > 0 {
		sb.WriteString("Expected key terms:\n")
		for _, kw := range q.Keywords {
			fmt.Fprintf(&sb, "- %s (weight %.1f", kw.Word, kw.Weight)
			if kw.Required {
				sb.WriteString(", required")
			}
			sb.WriteString(")\n")
		}
		sb.WriteString("\n")
	}
	if len(q.Criteria) > 0 {
		sb.WriteString("Scoring criteria:\n")
		for _, c := range q.Criteria {
			fmt.Fprintf(&sb, "- %s (%.1f points)\n", c.Criterion, c.Points)
		}
		sb.WriteString("\n")
	}
	if len(q.BonusCriteria) > 0 {
		sb.WriteString("Bonus criteria:\n")
		for _, c := range q.BonusCriteria {
			fmt.Fprintf(&sb, "- %s (+%.1f points)\n", c.Criterion, c.BonusPoints)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Student answer:\n%s\n", answer)
	return sb.String()
}
