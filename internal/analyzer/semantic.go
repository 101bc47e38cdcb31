package analyzer

import (
	"context"
	"strings"

	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
)

// Semantic measures conceptual overlap between the answer and the
// question's expected vocabulary using token-set Jaccard similarity.
// It catches paraphrased answers the keyword analyzer under-credits.
// Its confidence is the similarity itself: a weak overlap is also a
// weak signal.
type Semantic struct{}

func NewSemantic() *Semantic { return &Semantic{} }

func (s *Semantic) Name() string { return NameSemantic }

// semanticHighWater is the similarity above which the analyzer adds a
// qualitative remark to the feedback.
const semanticHighWater = 0.7

func (s *Semantic) Evaluate(ctx context.Context, q model.Question, answer string) model.AnalyzerResult {
	if strings.TrimSpace(answer) == "" {
		return abstain(s.Name())
	}

	expected := expectedVocabulary(q)
	if len(expected) == 0 {
		return abstain(s.Name())
	}

	answerSet := make(map[string]struct{})
	for _, tok := range tokens(answer) {
		if len(tok) >= 3 && !stopwords[tok] {
			answerSet[tok] = struct{}{}
		}
	}

	inter := 0
	for tok := range expected {
		if _, ok := answerSet[tok]; ok {
			inter++
		}
	}
	union := len(expected) + len(answerSet) - inter
	if union == 0 || inter == 0 {
		return abstain(s.Name())
	}

	similarity := float64(inter) / float64(union)

	feedback := ""
	if similarity >= semanticHighWater {
		feedback = i18n.T(ctx, "SemanticRemark")
	}

	return model.AnalyzerResult{
		Analyzer:   s.Name(),
		Score:      similarity * float64(q.MaxScore),
		Confidence: similarity,
		Similarity: similarity,
		Feedback:   feedback,
	}
}

// expectedVocabulary collects the question's concept words: the
// question text itself, keyword terms, their synonyms, and the wording
// of scoring criteria.
func expectedVocabulary(q model.Question) map[string]struct{} {
	set := make(map[string]struct{})
	add := func(text string) {
		for _, tok := range tokens(text) {
			if len(tok) >= 3 && !stopwords[tok] {
				set[tok] = struct{}{}
			}
		}
	}
	add(q.Text)
	for _, kw := range q.Keywords {
		add(kw.Word)
		for _, syn := range kw.Synonyms {
			add(syn)
		}
	}
	for _, c := range q.Criteria {
		add(c.Criterion)
	}
	return set
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "are": true, "was": true, "has": true, "have": true,
	"from": true, "into": true, "its": true, "can": true, "will": true,
	"not": true, "all": true, "any": true, "each": true, "must": true,
	"should": true, "what": true, "how": true, "why": true, "describe": true,
	"explain": true, "define": true,
}
