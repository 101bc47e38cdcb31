// Package marking turns analyzer results into question marks and
// whole-script totals.
package marking

import (
	"strings"

	"github.com/scriptmark/scriptmark/internal/analyzer"
	"github.com/scriptmark/scriptmark/internal/model"
)

// fusionWeights fixes each analyzer's share of the fused mark. The
// keyword analyzer dominates because it is the only fully
// deterministic, rubric-exact signal.
var fusionWeights = map[string]float64{
	analyzer.NameKeyword:   0.4,
	analyzer.NameSemantic:  0.3,
	analyzer.NameStructure: 0.15,
	analyzer.NameExternal:  0.15,
}

// defaultWeight applies to analyzers registered without an entry in
// fusionWeights.
const defaultWeight = 0.1

// primaryAnalyzer maps a question's scoring method to the analyzer
// that carries it best. Numeric questions lean on the structure
// analyzer, which checks for digits and visible working.
var primaryAnalyzer = map[model.ScoringMethod]string{
	model.MethodKeyword:    analyzer.NameKeyword,
	model.MethodSemantic:   analyzer.NameSemantic,
	model.MethodNumeric:    analyzer.NameStructure,
	model.MethodStructural: analyzer.NameStructure,
}

// weightFor returns an analyzer's fusion weight, doubled when the
// question's scoring method names it as the primary signal.
func weightFor(name string, method model.ScoringMethod) float64 {
	w, ok := fusionWeights[name]
	if !ok {
		w = defaultWeight
	}
	if primaryAnalyzer[method] == name {
		w *= 2
	}
	return w
}

// Fused is the combined outcome for one question.
type Fused struct {
	Score      float64
	Confidence float64
	Feedback   string
}

// Fuse combines analyzer results into one mark. A question tagged
// with a scoring method gives its primary analyzer double weight.
//
// An abstaining analyzer (score 0) drops out of both the weighted sum
// and the weight normalizer, so one abstention does not drag the mark
// toward zero: if exactly one analyzer scored, the fused score is that
// analyzer's score. Confidence, in contrast, averages over ALL
// analyzers including abstainers, so a mark backed by one analyzer out
// of four honestly reports low confidence.
func Fuse(results []model.AnalyzerResult, maxScore int, method model.ScoringMethod) Fused {
	if len(results) == 0 {
		return Fused{}
	}

	var weightedSum, weightTotal float64
	var confSum float64
	var feedback []string

	for _, r := range results {
		confSum += r.Confidence

		if r.Abstained() {
			continue
		}

		w := weightFor(r.Analyzer, method)
		weightedSum += r.Score * w
		weightTotal += w

		if r.Feedback != "" {
			feedback = append(feedback, r.Feedback)
		}
	}

	var score float64
	if weightTotal > 0 {
		score = weightedSum / weightTotal
	}
	if score < 0 {
		score = 0
	}
	if max := float64(maxScore); score > max {
		score = max
	}

	return Fused{
		Score:      score,
		Confidence: confSum / float64(len(results)),
		Feedback:   strings.Join(feedback, " "),
	}
}
