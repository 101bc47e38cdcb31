// Package rubric provides fallback scoring templates for questions
// whose import omitted an explicit rubric. Templates are keyed by
// question type and supply generic keywords and criteria so every
// question can be marked, if only coarsely.
package rubric

import (
	"strings"
	"sync"

	"github.com/scriptmark/scriptmark/internal/model"
)

// Template is a reusable rubric fragment for one question type.
type Template struct {
	Type          string
	Keywords      []model.Keyword
	Criteria      []model.Criterion
	BonusCriteria []model.BonusCriterion
}

// Registry holds templates by question type. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry returns a registry pre-seeded with the builtin
// templates. Custom templates registered later override builtins of
// the same type.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	for _, t := range builtinTemplates {
		r.templates[t.Type] = t
	}
	return r
}

// Register adds or replaces the template for a question type.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[strings.ToLower(t.Type)] = t
}

// Get returns the template for a question type, if any.
func (r *Registry) Get(qtype string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[strings.ToLower(qtype)]
	return t, ok
}

// Apply fills a question's empty rubric fields from the template for
// its type. A question that already carries keywords or criteria is
// returned unchanged; explicit rubrics always win over templates.
func (r *Registry) Apply(q model.Question) model.Question {
	if len(q.Keywords) > 0 || len(q.Criteria) > 0 {
		return q
	}
	t, ok := r.Get(q.Type)
	if !ok {
		return q
	}
	q.Keywords = t.Keywords
	q.Criteria = t.Criteria
	if len(q.BonusCriteria) == 0 {
		q.BonusCriteria = t.BonusCriteria
	}
	return q
}

// builtinTemplates cover the common short-answer question types. They
// are deliberately generic: structure-oriented criteria plus broad
// connective vocabulary, since the actual subject terms live in
// per-question rubrics when teachers provide them.
var builtinTemplates = []Template{
	{
		Type: "definition",
		Keywords: []model.Keyword{
			{Word: "means", Weight: 1, Synonyms: []string{"defined", "refers"}},
			{Word: "term", Weight: 1, Synonyms: []string{"concept", "word"}},
		},
		Criteria: []model.Criterion{
			{Criterion: "States the definition accurately", Points: 2},
			{Criterion: "Uses correct terminology", Points: 1},
		},
	},
	{
		Type: "explanation",
		Keywords: []model.Keyword{
			{Word: "because", Weight: 1, Synonyms: []string{"since", "therefore"}},
			{Word: "causes", Weight: 1, Synonyms: []string{"leads", "results"}},
			{Word: "process", Weight: 1, Synonyms: []string{"mechanism", "steps"}},
		},
		Criteria: []model.Criterion{
			{Criterion: "Identifies the cause or mechanism", Points: 2},
			{Criterion: "Explains the effect or outcome", Points: 2},
		},
		BonusCriteria: []model.BonusCriterion{
			{Criterion: "Gives a relevant example", BonusPoints: 1},
		},
	},
	{
		Type: "calculation",
		Keywords: []model.Keyword{
			{Word: "formula", Weight: 1, Synonyms: []string{"equation"}},
			{Word: "answer", Weight: 1, Synonyms: []string{"result", "solution"}},
			{Word: "units", Weight: 1, Synonyms: []string{"unit"}},
		},
		Criteria: []model.Criterion{
			{Criterion: "Shows working", Points: 1},
			{Criterion: "Arrives at the correct result", Points: 2},
			{Criterion: "States units", Points: 1},
		},
	},
	{
		Type: "essay",
		Keywords: []model.Keyword{
			{Word: "firstly", Weight: 1, Synonyms: []string{"first", "initially"}},
			{Word: "however", Weight: 1, Synonyms: []string{"although", "whereas"}},
			{Word: "conclusion", Weight: 1, Synonyms: []string{"summary", "overall"}},
		},
		Criteria: []model.Criterion{
			{Criterion: "Presents a clear argument", Points: 3},
			{Criterion: "Supports claims with evidence", Points: 3},
			{Criterion: "Reaches a reasoned conclusion", Points: 2},
		},
		BonusCriteria: []model.BonusCriterion{
			{Criterion: "Considers counterarguments", BonusPoints: 2},
		},
	},
}
