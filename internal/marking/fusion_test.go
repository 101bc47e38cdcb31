package marking

import (
	"math"
	"testing"

	"github.com/scriptmark/scriptmark/internal/analyzer"
	"github.com/scriptmark/scriptmark/internal/model"
)

func TestFuseAllAbstainIsZero(t *testing.T) {
	results := []model.AnalyzerResult{
		{Analyzer: analyzer.NameKeyword},
		{Analyzer: analyzer.NameSemantic},
		{Analyzer: analyzer.NameStructure},
		{Analyzer: analyzer.NameExternal},
	}

	got := Fuse(results, 10, "")
	if got.Score != 0 {
		t.Errorf("score = %v, want exactly 0", got.Score)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", got.Confidence)
	}
}

func TestFuseSingleNonAbstainerWinsOutright(t *testing.T) {
	results := []model.AnalyzerResult{
		{Analyzer: analyzer.NameKeyword, Score: 7.5, Confidence: 1.0},
		{Analyzer: analyzer.NameSemantic},
		{Analyzer: analyzer.NameStructure},
		{Analyzer: analyzer.NameExternal},
	}

	got := Fuse(results, 10, "")
	if got.Score != 7.5 {
		t.Errorf("score = %v, want 7.5 (sole non-abstaining analyzer)", got.Score)
	}
	// Confidence still averages over all four, abstainers included.
	if want := 1.0 / 4; got.Confidence != want {
		t.Errorf("confidence = %v, want %v", got.Confidence, want)
	}
}

func TestFuseWeightedAverage(t *testing.T) {
	results := []model.AnalyzerResult{
		{Analyzer: analyzer.NameKeyword, Score: 8, Confidence: 1.0},
		{Analyzer: analyzer.NameSemantic, Score: 6, Confidence: 0.8},
	}

	got := Fuse(results, 10, "")
	want := (8*0.4 + 6*0.3) / (0.4 + 0.3)
	if math.Abs(got.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got.Score, want)
	}
	if wantConf := (1.0 + 0.8) / 2; got.Confidence != wantConf {
		t.Errorf("confidence = %v, want %v", got.Confidence, wantConf)
	}
}

func TestFuseCapsAtMaxScore(t *testing.T) {
	results := []model.AnalyzerResult{
		{Analyzer: analyzer.NameKeyword, Score: 15, Confidence: 1.0},
	}

	got := Fuse(results, 10, "")
	if got.Score != 10 {
		t.Errorf("score = %v, want capped at 10", got.Score)
	}
}

func TestFuseJoinsFeedback(t *testing.T) {
	results := []model.AnalyzerResult{
		{Analyzer: analyzer.NameKeyword, Score: 5, Confidence: 1.0, Feedback: "Matched key terms: 2 of 3."},
		{Analyzer: analyzer.NameStructure, Score: 4, Confidence: 0.6, Feedback: "Answer shows adequate structure"},
		{Analyzer: analyzer.NameSemantic, Feedback: "ignored, abstained"},
	}

	got := Fuse(results, 10, "")
	if got.Feedback != "Matched key terms: 2 of 3. Answer shows adequate structure" {
		t.Errorf("feedback = %q", got.Feedback)
	}
}

func TestFuseMethodBoostsPrimaryAnalyzer(t *testing.T) {
	results := []model.AnalyzerResult{
		{Analyzer: analyzer.NameKeyword, Score: 8, Confidence: 1.0},
		{Analyzer: analyzer.NameSemantic, Score: 4, Confidence: 0.8},
	}

	plain := Fuse(results, 10, "")
	boosted := Fuse(results, 10, model.MethodKeyword)

	// Doubling the keyword weight pulls the fused score toward its 8.
	want := (8*0.8 + 4*0.3) / (0.8 + 0.3)
	if math.Abs(boosted.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", boosted.Score, want)
	}
	if boosted.Score <= plain.Score {
		t.Errorf("method-weighted score %v not above default %v", boosted.Score, plain.Score)
	}
}

func TestFuseEmptyInput(t *testing.T) {
	got := Fuse(nil, 10, "")
	if got.Score != 0 || got.Confidence != 0 {
		t.Errorf("got %+v, want zero value", got)
	}
}
