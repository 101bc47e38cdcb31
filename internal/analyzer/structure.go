package analyzer

import (
	"context"
	"strings"

	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
)

// Structure scores the shape of an answer rather than its content. It
// classifies the question from its wording and applies type-specific
// heuristics: a calculation wants numbers and visible working, an
// essay wants developed sentences, a definition just needs one proper
// sentence. It keeps a thin but genuine attempt from scoring zero
// across the whole ensemble.
type Structure struct{}

func NewStructure() *Structure { return &Structure{} }

func (s *Structure) Name() string { return NameStructure }

// structureConfidence is low: answer shape says little about whether
// the content is right.
const structureConfidence = 0.6

type questionKind int

const (
	kindGeneral questionKind = iota
	kindMathematical
	kindEssay
	kindDefinition
)

func classifyQuestion(text string) questionKind {
	lower := strings.ToLower(text)
	contains := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("calculate", "solve", "compute", "how many", "how much", "equation"):
		return kindMathematical
	case contains("discuss", "essay", "evaluate", "compare", "analyse", "analyze", "to what extent"):
		return kindEssay
	case contains("define", "definition", "what is meant"):
		return kindDefinition
	default:
		return kindGeneral
	}
}

func (s *Structure) Evaluate(ctx context.Context, q model.Question, answer string) model.AnalyzerResult {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return abstain(s.Name())
	}

	words := len(tokens(trimmed))
	sentences := sentenceCount(trimmed)

	var fraction float64
	var msgID string

	switch classifyQuestion(q.Text) {
	case kindMathematical:
		if hasNumericToken(trimmed) {
			fraction += 0.4
		}
		if showsWorking(trimmed) {
			fraction += 0.35
		}
		if fraction == 0 {
			return abstain(s.Name())
		}
		msgID = "StructureAdequate"
		if fraction > 0.4 {
			msgID = "StructureDetailed"
		}

	case kindEssay:
		switch {
		case words >= 100 && sentences >= 3:
			fraction, msgID = 0.9, "StructureDetailed"
		case words >= 50 && sentences >= 3:
			fraction, msgID = 0.75, "StructureDetailed"
		case words >= 20:
			fraction, msgID = 0.4, "StructureAdequate"
		case words >= 10:
			fraction, msgID = 0.2, "BasicAnswer"
		default:
			return abstain(s.Name())
		}

	case kindDefinition:
		if sentences >= 1 && len(trimmed) >= 20 {
			fraction, msgID = 0.6, "StructureAdequate"
		} else {
			return abstain(s.Name())
		}

	default:
		switch {
		case words >= 100 && sentences >= 3:
			fraction, msgID = 0.9, "StructureDetailed"
		case words >= 50 && sentences >= 3:
			fraction, msgID = 0.75, "StructureDetailed"
		case words >= 20:
			fraction, msgID = 0.5, "StructureAdequate"
		case words >= 10:
			fraction, msgID = 0.35, "StructureAdequate"
		case len(trimmed) >= 20 && sentences >= 1:
			fraction, msgID = 0.25, "BasicAnswer"
		default:
			return abstain(s.Name())
		}
	}

	return model.AnalyzerResult{
		Analyzer:   s.Name(),
		Score:      fraction * float64(q.MaxScore),
		Confidence: structureConfidence,
		Feedback:   i18n.T(ctx, msgID),
	}
}

// hasNumericToken reports whether the answer contains at least one
// digit-bearing token.
func hasNumericToken(text string) bool {
	for _, r := range text {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// showsWorking looks for signs of visible working: arithmetic
// operators, an equals sign, or enumerated steps across lines.
func showsWorking(text string) bool {
	if strings.ContainsAny(text, "=+×÷*/") {
		return true
	}
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines++
		}
	}
	return lines >= 3
}
