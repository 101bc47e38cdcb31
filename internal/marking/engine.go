package marking

import (
	"context"
	"log/slog"

	"github.com/scriptmark/scriptmark/internal/analyzer"
	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
	"github.com/scriptmark/scriptmark/internal/rubric"
	"github.com/scriptmark/scriptmark/internal/segment"
)

// Engine marks a script by running every question's answer through
// the analyzer ensemble and fusing the results.
type Engine struct {
	analyzers []analyzer.Analyzer
	templates *rubric.Registry
}

func NewEngine(analyzers []analyzer.Analyzer, templates *rubric.Registry) *Engine {
	return &Engine{analyzers: analyzers, templates: templates}
}

// MarkScript produces a QuestionResult for every question in the
// script and returns the results with the script total. The script is
// not mutated; callers persist what they want from the returned
// values.
//
// A panic or failure inside a single analyzer is contained to that
// analyzer (it becomes an abstention); a question with no detected
// answer is scored zero with explanatory feedback rather than treated
// as an error.
func (e *Engine) MarkScript(ctx context.Context, s *model.Script) ([]model.QuestionResult, float64) {
	pageTexts := make([]string, 0, len(s.Pages))
	for _, p := range s.Pages {
		pageTexts = append(pageTexts, p.Text)
	}
	answers := segment.Answers(pageTexts, s.Questions)

	results := make([]model.QuestionResult, 0, len(s.Questions))
	var total float64

	for _, q := range s.Questions {
		if e.templates != nil {
			q = e.templates.Apply(q)
		}

		qr := e.markQuestion(ctx, q, answers[q.Number])

		// Preserve an existing manual override across re-marks.
		if prev := s.Result(q.Number); prev != nil && prev.IsManuallyReviewed {
			qr.ManualScore = prev.ManualScore
			qr.ManualFeedback = prev.ManualFeedback
			qr.IsManuallyReviewed = true
		}

		total += qr.FinalScore()
		results = append(results, qr)
	}

	return results, total
}

func (e *Engine) markQuestion(ctx context.Context, q model.Question, answer string) model.QuestionResult {
	if answer == "" {
		return model.QuestionResult{
			Number:     q.Number,
			AIFeedback: i18n.T(ctx, "NoAnswerDetected"),
		}
	}

	ar := make([]model.AnalyzerResult, 0, len(e.analyzers))
	for _, a := range e.analyzers {
		ar = append(ar, e.evaluate(ctx, a, q, answer))
	}

	fused := Fuse(ar, q.MaxScore, q.Method)
	if fused.Feedback == "" && fused.Score > 0 {
		fused.Feedback = i18n.T(ctx, "BasicAnswer")
	}

	qr := model.QuestionResult{
		Number:       q.Number,
		AIScore:      fused.Score,
		AIConfidence: fused.Confidence,
		AIFeedback:   fused.Feedback,
	}
	for _, r := range ar {
		switch r.Analyzer {
		case analyzer.NameKeyword:
			qr.MatchedKeywords = r.MatchedKeywords
		case analyzer.NameSemantic:
			qr.SemanticScore = r.Similarity
		}
	}
	return qr
}

// evaluate shields the ensemble from a misbehaving analyzer: a panic
// is logged and converted to an abstention for that question.
func (e *Engine) evaluate(ctx context.Context, a analyzer.Analyzer, q model.Question, answer string) (res model.AnalyzerResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("analyzer panic", "analyzer", a.Name(), "question", q.Number, "panic", r)
			res = model.AnalyzerResult{Analyzer: a.Name()}
		}
	}()
	return a.Evaluate(ctx, q, answer)
}
