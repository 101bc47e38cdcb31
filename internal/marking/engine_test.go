package marking

import (
	"context"
	"os"
	"testing"

	"github.com/scriptmark/scriptmark/internal/analyzer"
	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
	"github.com/scriptmark/scriptmark/internal/rubric"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testEngine() *Engine {
	return NewEngine([]analyzer.Analyzer{
		analyzer.NewKeyword(),
		analyzer.NewSemantic(),
		analyzer.NewStructure(),
		analyzer.NewExternal(analyzer.ExternalConfig{}), // unconfigured, abstains
	}, rubric.NewRegistry())
}

func biologyScript() *model.Script {
	return &model.Script{
		ID:      1,
		Subject: "biology",
		Pages: []model.Page{
			{Number: 1, Text: "1. Photosynthesis uses chlorophyll and sunlight to produce glucose in plants.\n2. Osmosis is the movement of water across a membrane."},
		},
		Questions: []model.Question{
			{
				Number: 1, Text: "How do plants make food?", MaxScore: 10,
				Keywords: []model.Keyword{
					{Word: "photosynthesis", Weight: 3, Required: true},
					{Word: "chlorophyll", Weight: 2},
					{Word: "glucose", Weight: 2},
				},
			},
			{
				Number: 2, Text: "Define osmosis.", MaxScore: 5,
				Keywords: []model.Keyword{
					{Word: "osmosis", Weight: 2, Required: true},
					{Word: "membrane", Weight: 1},
					{Word: "water", Weight: 1},
				},
			},
		},
	}
}

func TestMarkScriptScoresEveryQuestion(t *testing.T) {
	s := biologyScript()
	results, total := testEngine().MarkScript(context.Background(), s)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	var sum float64
	for i, qr := range results {
		q := s.Questions[i]
		if qr.Number != q.Number {
			t.Errorf("result %d has number %d, want %d", i, qr.Number, q.Number)
		}
		if qr.AIScore <= 0 {
			t.Errorf("q%d score = %v, want > 0 for a full answer", qr.Number, qr.AIScore)
		}
		if qr.AIScore > float64(q.MaxScore) {
			t.Errorf("q%d score = %v exceeds max %d", qr.Number, qr.AIScore, q.MaxScore)
		}
		if qr.AIConfidence <= 0 || qr.AIConfidence > 1 {
			t.Errorf("q%d confidence = %v out of range", qr.Number, qr.AIConfidence)
		}
		sum += qr.FinalScore()
	}
	if total != sum {
		t.Errorf("total = %v, want sum of question finals %v", total, sum)
	}

	if len(results[0].MatchedKeywords) == 0 {
		t.Error("q1 should report matched keywords")
	}
	if results[0].SemanticScore <= 0 {
		t.Error("q1 should report a semantic similarity")
	}
}

func TestMarkScriptEmptyTextMeansNoAnswers(t *testing.T) {
	s := biologyScript()
	for i := range s.Pages {
		s.Pages[i].Text = ""
	}

	results, total := testEngine().MarkScript(context.Background(), s)

	if total != 0 {
		t.Errorf("total = %v, want 0", total)
	}
	for _, qr := range results {
		if qr.AIScore != 0 {
			t.Errorf("q%d score = %v, want 0", qr.Number, qr.AIScore)
		}
		if qr.AIFeedback != "No answer detected for this question" {
			t.Errorf("q%d feedback = %q", qr.Number, qr.AIFeedback)
		}
	}
}

func TestMarkScriptUnmarkedQuestionUsesFullTextFallback(t *testing.T) {
	s := biologyScript()
	s.Pages[0].Text = "1. Photosynthesis uses chlorophyll and sunlight to produce glucose in plants."

	results, _ := testEngine().MarkScript(context.Background(), s)

	// Question 2 has no marker of its own, so it is scored against the
	// full combined text instead of being recorded as unanswered.
	if results[1].AIFeedback == "No answer detected for this question" {
		t.Fatalf("unmarked q2 treated as unanswered: %+v", results[1])
	}
	if results[1].AIScore <= 0 {
		t.Errorf("q2 score = %v, want > 0 from the full-text fallback", results[1].AIScore)
	}
	if results[0].AIScore <= 0 {
		t.Error("answered q1 should still score")
	}
}

func TestMarkScriptTemplateFallback(t *testing.T) {
	s := &model.Script{
		Pages: []model.Page{{Number: 1, Text: "1. It happens because heat causes the particles to move faster, which leads to expansion of the material."}},
		Questions: []model.Question{
			{Number: 1, Type: "explanation", MaxScore: 4},
		},
	}

	results, _ := testEngine().MarkScript(context.Background(), s)
	if results[0].AIScore <= 0 {
		t.Errorf("score = %v, want > 0 via template rubric", results[0].AIScore)
	}
}

func TestMarkScriptPreservesManualOverride(t *testing.T) {
	s := biologyScript()
	manual := 9.0
	s.Results = []model.QuestionResult{
		{Number: 1, AIScore: 4, ManualScore: &manual, ManualFeedback: "Excellent diagram.", IsManuallyReviewed: true},
	}

	results, total := testEngine().MarkScript(context.Background(), s)

	if results[0].ManualScore == nil || *results[0].ManualScore != 9 {
		t.Fatal("manual override lost on re-mark")
	}
	if !results[0].IsManuallyReviewed {
		t.Error("review flag lost on re-mark")
	}
	if got := results[0].FinalScore(); got != 9 {
		t.Errorf("final score = %v, want manual 9", got)
	}

	var sum float64
	for _, qr := range results {
		sum += qr.FinalScore()
	}
	if total != sum {
		t.Errorf("total = %v, want %v", total, sum)
	}
}

func TestMarkScriptGenericFeedbackWhenNoCommentary(t *testing.T) {
	// Only the semantic analyzer runs, and its similarity stays below
	// the remark threshold, so no analyzer produces commentary.
	e := NewEngine([]analyzer.Analyzer{analyzer.NewSemantic()}, nil)
	s := &model.Script{
		Pages: []model.Page{{Number: 1, Text: "1. The osmosis moves water gradually there."}},
		Questions: []model.Question{
			{Number: 1, MaxScore: 5, Keywords: []model.Keyword{
				{Word: "osmosis", Weight: 2},
				{Word: "membrane", Weight: 2},
			}},
		},
	}

	results, _ := e.MarkScript(context.Background(), s)

	if results[0].AIScore <= 0 {
		t.Fatalf("score = %v, want > 0", results[0].AIScore)
	}
	if results[0].AIFeedback != "Basic answer provided" {
		t.Errorf("feedback = %q, want the generic remark", results[0].AIFeedback)
	}
}

type panicAnalyzer struct{}

func (panicAnalyzer) Name() string { return "panicky" }
func (panicAnalyzer) Evaluate(context.Context, model.Question, string) model.AnalyzerResult {
	panic("boom")
}

func TestMarkScriptContainsAnalyzerPanic(t *testing.T) {
	e := NewEngine([]analyzer.Analyzer{
		panicAnalyzer{},
		analyzer.NewKeyword(),
	}, nil)

	s := biologyScript()
	results, _ := e.MarkScript(context.Background(), s)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].AIScore <= 0 {
		t.Error("keyword analyzer should still score despite a panicking peer")
	}
}
