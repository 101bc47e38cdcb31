package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/scriptmark/scriptmark/internal/model"
)

func TestStructureGeneralTiers(t *testing.T) {
	q := model.Question{MaxScore: 10}
	s := NewStructure()

	sentence := "The process depends on several interacting biological factors working together overall. "
	long := strings.Repeat(sentence, 11)  // ~120 words, 11 sentences
	medium := strings.Repeat(sentence, 6) // ~66 words, 6 sentences
	short := "This is a short answer, roughly twenty words long, that mentions a couple of relevant points without very much development."
	minimal := "Plants need light to live."

	tests := []struct {
		name   string
		answer string
		want   float64
	}{
		{"detailed", long, 9},
		{"developed", medium, 7.5},
		{"adequate", short, 5},
		{"minimal", minimal, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Evaluate(context.Background(), q, tt.answer)
			if got.Score != tt.want {
				t.Errorf("score = %v, want %v", got.Score, tt.want)
			}
			if got.Confidence != structureConfidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, structureConfidence)
			}
		})
	}
}

func TestStructureMathematical(t *testing.T) {
	q := model.Question{MaxScore: 10, Text: "Calculate the total distance traveled."}
	s := NewStructure()

	working := s.Evaluate(context.Background(), q, "12 + 8 = 20 km")
	bare := s.Evaluate(context.Background(), q, "about twenty km, I think 20")
	none := s.Evaluate(context.Background(), q, "quite far away from the start")

	if working.Score != 7.5 {
		t.Errorf("numbers with working = %v, want 7.5", working.Score)
	}
	if bare.Score != 4 {
		t.Errorf("numbers without working = %v, want 4", bare.Score)
	}
	if !none.Abstained() {
		t.Error("a numberless answer to a calculation should abstain")
	}
}

func TestStructureDefinition(t *testing.T) {
	q := model.Question{MaxScore: 5, Text: "Define osmosis."}
	s := NewStructure()

	proper := s.Evaluate(context.Background(), q,
		"Osmosis is the movement of water across a membrane.")
	fragment := s.Evaluate(context.Background(), q, "water moves")

	if proper.Score != 3 {
		t.Errorf("definition score = %v, want 3", proper.Score)
	}
	if !fragment.Abstained() {
		t.Error("a fragment should abstain for a definition question")
	}
}

func TestStructureEssay(t *testing.T) {
	q := model.Question{MaxScore: 10, Text: "Discuss the causes of the conflict."}
	s := NewStructure()

	short := s.Evaluate(context.Background(), q,
		"The conflict began because of several competing territorial claims and long standing deep economic rivalry between the neighbouring states involved.")

	// 20 words in a single sentence: adequate for a general question but
	// underdeveloped for an essay.
	if short.Score != 4 {
		t.Errorf("short essay score = %v, want 4", short.Score)
	}
}

func TestStructureAbstainsOnEmptyOrTiny(t *testing.T) {
	q := model.Question{MaxScore: 10}
	s := NewStructure()

	if got := s.Evaluate(context.Background(), q, ""); !got.Abstained() {
		t.Error("empty answer should abstain")
	}
	if got := s.Evaluate(context.Background(), q, "yes"); !got.Abstained() {
		t.Error("a bare word should abstain")
	}
}

func TestSentenceCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"One sentence.", 1},
		{"One. Two. Three.", 3},
		{"Ellipsis... still one sentence", 2},
		{"No terminator at all", 1},
	}
	for _, tt := range tests {
		if got := sentenceCount(tt.text); got != tt.want {
			t.Errorf("sentenceCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
