package analyzer

import (
	"context"
	"strings"

	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
)

// Match credit multipliers. A synonym counts almost as much as the
// term itself; a partial (the answer carries a recognizable fragment
// of a long term, common with noisy transcription) earns reduced
// credit.
const (
	synonymFactor = 0.8
	partialFactor = 0.6
)

// Keyword scores an answer by which rubric terms it contains: the sum
// of matched keyword weights plus satisfied bonus criteria, capped at
// the question maximum. This is the workhorse analyzer; its
// confidence is the fraction of rubric keywords it found.
type Keyword struct{}

func NewKeyword() *Keyword { return &Keyword{} }

func (k *Keyword) Name() string { return NameKeyword }

func (k *Keyword) Evaluate(ctx context.Context, q model.Question, answer string) model.AnalyzerResult {
	if len(q.Keywords) == 0 || strings.TrimSpace(answer) == "" {
		return abstain(k.Name())
	}

	lower := strings.ToLower(answer)
	answerTokens := tokens(answer)

	var earned float64
	var matched, missingRequired []string

	for _, kw := range q.Keywords {
		credit, hit := matchKeyword(kw, lower, answerTokens)
		if hit {
			earned += kw.Weight * credit
			matched = append(matched, kw.Word)
			continue
		}
		if kw.Required {
			missingRequired = append(missingRequired, kw.Word)
		}
	}

	for _, bonus := range q.BonusCriteria {
		if criterionSatisfied(bonus.Criterion, answerTokens) {
			earned += bonus.BonusPoints
		}
	}

	score := earned
	if max := float64(q.MaxScore); score > max {
		score = max
	}

	feedback := i18n.Td(ctx, "KeywordCommentary", map[string]any{
		"Matched": len(matched),
		"Total":   len(q.Keywords),
	})
	if len(missingRequired) > 0 {
		feedback += ". " + i18n.Td(ctx, "MissingRequiredTerms", map[string]any{
			"Terms": strings.Join(missingRequired, ", "),
		})
	}

	return model.AnalyzerResult{
		Analyzer:        k.Name(),
		Score:           score,
		Confidence:      float64(len(matched)) / float64(len(q.Keywords)),
		MatchedKeywords: matched,
		MissingRequired: missingRequired,
		Feedback:        feedback,
	}
}

// matchKeyword returns the credit multiplier for a keyword and whether
// it matched. Case-insensitive substring match of the term wins, then
// synonyms, then a partial match where a longer rubric term contains a
// recognizable answer fragment.
func matchKeyword(kw model.Keyword, answerLower string, answerTokens []string) (float64, bool) {
	word := strings.ToLower(kw.Word)

	if strings.Contains(answerLower, word) {
		return 1.0, true
	}

	for _, syn := range kw.Synonyms {
		if syn != "" && strings.Contains(answerLower, strings.ToLower(syn)) {
			return synonymFactor, true
		}
	}

	if len(word) > 5 && !strings.Contains(word, " ") {
		for _, tok := range answerTokens {
			if len(tok) >= 4 && strings.Contains(word, tok) {
				return partialFactor, true
			}
		}
	}

	return 0, false
}

// criterionSatisfied is a coarse check for bonus criteria: at least
// half of the criterion's significant words must appear in the answer.
func criterionSatisfied(criterion string, answerTokens []string) bool {
	answerSet := make(map[string]struct{}, len(answerTokens))
	for _, t := range answerTokens {
		answerSet[t] = struct{}{}
	}

	var significant, present int
	for _, tok := range tokens(criterion) {
		if len(tok) < 4 || stopwords[tok] {
			continue
		}
		significant++
		if _, ok := answerSet[tok]; ok {
			present++
		}
	}
	return significant > 0 && present*2 >= significant
}
