package rubric

import (
	"testing"

	"github.com/scriptmark/scriptmark/internal/model"
)

func TestApplyFillsEmptyRubric(t *testing.T) {
	r := NewRegistry()

	q := model.Question{Number: 1, Type: "explanation", MaxScore: 5}
	got := r.Apply(q)

	if len(got.Keywords) == 0 {
		t.Error("template keywords should be applied to an empty rubric")
	}
	if len(got.Criteria) == 0 {
		t.Error("template criteria should be applied to an empty rubric")
	}
}

func TestApplyKeepsExplicitRubric(t *testing.T) {
	r := NewRegistry()

	q := model.Question{
		Number:   1,
		Type:     "explanation",
		MaxScore: 5,
		Keywords: []model.Keyword{{Word: "osmosis", Weight: 2}},
	}
	got := r.Apply(q)

	if len(got.Keywords) != 1 || got.Keywords[0].Word != "osmosis" {
		t.Errorf("explicit rubric must win over the template, got %v", got.Keywords)
	}
}

func TestApplyUnknownTypeUnchanged(t *testing.T) {
	r := NewRegistry()

	q := model.Question{Number: 1, Type: "interpretive-dance", MaxScore: 5}
	got := r.Apply(q)

	if len(got.Keywords) != 0 || len(got.Criteria) != 0 {
		t.Errorf("unknown type should leave the question unchanged, got %+v", got)
	}
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	r.Register(Template{
		Type:     "Essay",
		Keywords: []model.Keyword{{Word: "thesis", Weight: 2}},
	})

	tpl, ok := r.Get("essay")
	if !ok {
		t.Fatal("registered template not found")
	}
	if len(tpl.Keywords) != 1 || tpl.Keywords[0].Word != "thesis" {
		t.Errorf("override not applied: %v", tpl.Keywords)
	}
}
