package store

import (
	"encoding/json"
	"fmt"

	"github.com/scriptmark/scriptmark/internal/rubric"
)

// SaveRubricTemplate upserts a custom rubric template.
func (s *Store) SaveRubricTemplate(t rubric.Template) error {
	kw, err := json.Marshal(t.Keywords)
	if err != nil {
		return fmt.Errorf("marshal template keywords: %w", err)
	}
	cr, err := json.Marshal(t.Criteria)
	if err != nil {
		return fmt.Errorf("marshal template criteria: %w", err)
	}
	bc, err := json.Marshal(t.BonusCriteria)
	if err != nil {
		return fmt.Errorf("marshal template bonus criteria: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO rubric_templates (type, keywords, criteria, bonus_criteria)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET
			keywords = excluded.keywords,
			criteria = excluded.criteria,
			bonus_criteria = excluded.bonus_criteria`,
		t.Type, string(kw), string(cr), string(bc))
	if err != nil {
		return fmt.Errorf("save rubric template %s: %w", t.Type, err)
	}
	return nil
}

// LoadRubricTemplates registers all stored templates into the
// registry, overriding builtins of the same type.
func (s *Store) LoadRubricTemplates(reg *rubric.Registry) error {
	rows, err := s.db.Query(`SELECT type, keywords, criteria, bonus_criteria FROM rubric_templates`)
	if err != nil {
		return fmt.Errorf("load rubric templates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t rubric.Template
		var kw, cr, bc string
		if err := rows.Scan(&t.Type, &kw, &cr, &bc); err != nil {
			return fmt.Errorf("scan rubric template: %w", err)
		}
		if err := json.Unmarshal([]byte(kw), &t.Keywords); err != nil {
			return fmt.Errorf("unmarshal template %s keywords: %w", t.Type, err)
		}
		if err := json.Unmarshal([]byte(cr), &t.Criteria); err != nil {
			return fmt.Errorf("unmarshal template %s criteria: %w", t.Type, err)
		}
		if err := json.Unmarshal([]byte(bc), &t.BonusCriteria); err != nil {
			return fmt.Errorf("unmarshal template %s bonus criteria: %w", t.Type, err)
		}
		reg.Register(t)
	}
	return rows.Err()
}
