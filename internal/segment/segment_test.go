package segment

import (
	"strings"
	"testing"

	"github.com/scriptmark/scriptmark/internal/model"
)

func questions(nums ...int) []model.Question {
	qs := make([]model.Question, len(nums))
	for i, n := range nums {
		qs[i] = model.Question{Number: n}
	}
	return qs
}

func TestAnswersSplitsOnMarkers(t *testing.T) {
	text := "1. Photosynthesis converts light into glucose.\n" +
		"2) The mitochondria produces ATP.\n" +
		"3. Osmosis is diffusion of water."

	got := Answers([]string{text}, questions(1, 2, 3))

	if want := "Photosynthesis converts light into glucose."; got[1] != want {
		t.Errorf("q1 = %q, want %q", got[1], want)
	}
	if want := "The mitochondria produces ATP."; got[2] != want {
		t.Errorf("q2 = %q, want %q", got[2], want)
	}
	if want := "Osmosis is diffusion of water."; got[3] != want {
		t.Errorf("q3 = %q, want %q", got[3], want)
	}
}

func TestAnswersMultilineAnswer(t *testing.T) {
	text := "1. First line of the answer\ncontinues on the next line\nand a third line.\n2. Short answer."

	got := Answers([]string{text}, questions(1, 2))
	if !strings.Contains(got[1], "third line") {
		t.Errorf("q1 should span multiple lines, got %q", got[1])
	}
	if strings.Contains(got[1], "Short answer") {
		t.Errorf("q1 leaked into q2's text: %q", got[1])
	}
}

func TestAnswersAcrossPageBreak(t *testing.T) {
	page1 := "1. The answer starts here"
	page2 := "and finishes on the second page.\n2. Another answer."

	got := Answers([]string{page1, page2}, questions(1, 2))
	if !strings.Contains(got[1], "finishes on the second page") {
		t.Errorf("answer split across pages was truncated: %q", got[1])
	}
}

func TestAnswersUnmarkedQuestionFallsBackToFullText(t *testing.T) {
	text := "1. The first answer.\nAn unnumbered paragraph that answers the second question."

	got := Answers([]string{text}, questions(1, 2))

	if want := "The first answer.\nAn unnumbered paragraph that answers the second question."; got[1] != want {
		t.Errorf("q1 = %q, want its own span", got[1])
	}
	// No marker for question 2: it gets the full combined text so the
	// unnumbered material is still scored, not treated as no answer.
	if got[2] != text {
		t.Errorf("q2 = %q, want the full combined text", got[2])
	}
}

func TestAnswersNoMarkersFallsBack(t *testing.T) {
	text := "The student wrote everything as one block with no numbering at all."

	got := Answers([]string{text}, questions(1, 2))
	if got[1] != text || got[2] != text {
		t.Errorf("without markers every question should get the full text, got %q / %q", got[1], got[2])
	}
}

func TestAnswersEmptyInput(t *testing.T) {
	got := Answers([]string{"", "   "}, questions(1))
	if got[1] != "" {
		t.Errorf("empty pages should yield empty answers, got %q", got[1])
	}
}

func TestAnswersIgnoresInlineNumbers(t *testing.T) {
	text := "1. The war started in 1914. It lasted 4 years.\n2. Second answer."

	got := Answers([]string{text}, questions(1, 2))
	if !strings.Contains(got[1], "1914") {
		t.Errorf("numbers inside a sentence must not split the answer: %q", got[1])
	}
}

func TestAnswersRepeatedMarkerLaterWins(t *testing.T) {
	text := "1. First attempt, crossed out.\n2. Middle answer.\n1. Second, real attempt."

	got := Answers([]string{text}, questions(1, 2))
	if !strings.Contains(got[1], "real attempt") {
		t.Errorf("later restart of an answer should win, got %q", got[1])
	}
}
