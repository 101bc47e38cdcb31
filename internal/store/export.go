package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/scriptmark/scriptmark/internal/model"
)

// ExportCSV writes one row per script (optionally filtered by status)
// with totals and percentages, for import into gradebooks.
func (s *Store) ExportCSV(w io.Writer, status model.ScriptStatus) error {
	scripts, err := s.ListScripts(status)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"script_id", "student_id", "subject", "exam_title", "status",
		"total_score", "max_score", "percentage", "uploaded_at",
	}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, sc := range scripts {
		rec := []string{
			strconv.FormatInt(sc.ID, 10),
			sc.StudentID,
			sc.Subject,
			sc.ExamTitle,
			string(sc.Status),
			strconv.FormatFloat(sc.TotalScore, 'f', 2, 64),
			strconv.Itoa(sc.MaxPossibleScore),
			strconv.FormatFloat(sc.PercentageScore(), 'f', 1, 64),
			sc.UploadedAt.Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row for script %d: %w", sc.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
