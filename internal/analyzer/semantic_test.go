package analyzer

import (
	"context"
	"testing"

	"github.com/scriptmark/scriptmark/internal/model"
)

func TestSemanticJaccard(t *testing.T) {
	q := model.Question{
		MaxScore: 10,
		Keywords: []model.Keyword{
			{Word: "photosynthesis", Weight: 3},
			{Word: "glucose", Weight: 2},
			{Word: "chlorophyll", Weight: 2},
			{Word: "sunlight", Weight: 1},
		},
	}

	s := NewSemantic()
	// Both answers draw only on expected vocabulary and stopwords, so
	// the similarity values are exact.
	full := s.Evaluate(context.Background(), q,
		"The photosynthesis and chlorophyll and sunlight and glucose.")
	half := s.Evaluate(context.Background(), q,
		"The photosynthesis and the sunlight.")

	if full.Score != 10 || full.Similarity != 1 {
		t.Errorf("full overlap score/similarity = %v/%v, want 10/1", full.Score, full.Similarity)
	}
	if half.Score != 5 || half.Similarity != 0.5 {
		t.Errorf("half overlap score/similarity = %v/%v, want 5/0.5", half.Score, half.Similarity)
	}
	if full.Confidence != full.Similarity || half.Confidence != half.Similarity {
		t.Errorf("confidence should equal similarity, got %v/%v", full.Confidence, half.Confidence)
	}
}

func TestSemanticHighWaterRemark(t *testing.T) {
	q := model.Question{
		MaxScore: 10,
		Keywords: []model.Keyword{
			{Word: "osmosis", Weight: 2},
			{Word: "membrane", Weight: 2},
		},
	}

	s := NewSemantic()
	strong := s.Evaluate(context.Background(), q, "The osmosis and the membrane.")
	weak := s.Evaluate(context.Background(), q, "The osmosis moves water gradually there.")

	if strong.Feedback == "" {
		t.Error("high-similarity answer should carry a remark")
	}
	if weak.Abstained() {
		t.Fatal("partial overlap should not abstain")
	}
	if weak.Feedback != "" {
		t.Errorf("low-similarity answer should carry no remark, got %q", weak.Feedback)
	}
}

func TestSemanticSynonymsExpandVocabulary(t *testing.T) {
	q := model.Question{
		MaxScore: 6,
		Keywords: []model.Keyword{
			{Word: "velocity", Weight: 1, Synonyms: []string{"speed"}},
		},
	}

	got := NewSemantic().Evaluate(context.Background(), q, "The speed.")
	if got.Abstained() {
		t.Fatal("synonym hit should not abstain")
	}
	// vocabulary is {velocity, speed}, answer covers one of the two
	if got.Score != 3 || got.Similarity != 0.5 {
		t.Errorf("score/similarity = %v/%v, want 3/0.5", got.Score, got.Similarity)
	}
}

func TestSemanticUsesQuestionText(t *testing.T) {
	q := model.Question{
		MaxScore: 4,
		Text:     "Explain condensation.",
	}

	got := NewSemantic().Evaluate(context.Background(), q, "Condensation.")
	if got.Abstained() {
		t.Fatal("question-text overlap should not abstain")
	}
	if got.Similarity != 1 {
		t.Errorf("similarity = %v, want 1", got.Similarity)
	}
}

func TestSemanticAbstains(t *testing.T) {
	s := NewSemantic()

	q := model.Question{MaxScore: 5, Keywords: []model.Keyword{{Word: "osmosis", Weight: 1}}}

	if got := s.Evaluate(context.Background(), q, ""); !got.Abstained() {
		t.Error("empty answer should abstain")
	}
	if got := s.Evaluate(context.Background(), q, "Totally unrelated words here."); !got.Abstained() {
		t.Error("zero overlap should abstain")
	}
	if got := s.Evaluate(context.Background(), model.Question{MaxScore: 5}, "Anything."); !got.Abstained() {
		t.Error("empty rubric vocabulary should abstain")
	}
}
