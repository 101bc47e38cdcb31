// Package analyzer holds the marking ensemble: independent strategies
// that each score a student answer against a question's rubric. Their
// results are fused downstream into one mark per question.
package analyzer

import (
	"context"

	"github.com/scriptmark/scriptmark/internal/model"
)

// Analyzer names used in results and fusion weights.
const (
	NameKeyword   = "keyword"
	NameSemantic  = "semantic"
	NameStructure = "structure"
	NameExternal  = "external"
)

// Analyzer scores one answer against one question. Implementations
// never return an error: an analyzer that cannot produce a meaningful
// score abstains by returning a result with Score 0, which fusion
// excludes from the weighted mark.
type Analyzer interface {
	Name() string
	Evaluate(ctx context.Context, q model.Question, answer string) model.AnalyzerResult
}

// abstain is the zero-score result every analyzer uses to opt out.
func abstain(name string) model.AnalyzerResult {
	return model.AnalyzerResult{Analyzer: name}
}
