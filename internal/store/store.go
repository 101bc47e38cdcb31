// Package store persists scripts, users, and rubric templates in
// SQLite. A Script is stored as an aggregate: the scripts row plus its
// pages, questions, and question_results rows, loaded and saved
// together.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scriptmark/scriptmark/internal/model"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and runs
// migrations. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time; funneling everything
	// through a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'teacher',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		exam_title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'uploaded',
		total_score REAL NOT NULL DEFAULT 0,
		max_possible_score INTEGER NOT NULL DEFAULT 0,
		uploaded_by INTEGER REFERENCES users(id),
		reviewed_by INTEGER REFERENCES users(id),
		uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP,
		reviewed_at TIMESTAMP,
		submitted_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS pages (
		script_id INTEGER NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		image_ref TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		processed_at TIMESTAMP,
		PRIMARY KEY (script_id, number)
	);

	CREATE TABLE IF NOT EXISTS questions (
		script_id INTEGER NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		max_score INTEGER NOT NULL DEFAULT 0,
		method TEXT NOT NULL DEFAULT 'keyword',
		keywords TEXT NOT NULL DEFAULT '[]',
		criteria TEXT NOT NULL DEFAULT '[]',
		bonus_criteria TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (script_id, number)
	);

	CREATE TABLE IF NOT EXISTS question_results (
		script_id INTEGER NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		ai_score REAL NOT NULL DEFAULT 0,
		ai_confidence REAL NOT NULL DEFAULT 0,
		ai_feedback TEXT NOT NULL DEFAULT '',
		matched_keywords TEXT NOT NULL DEFAULT '[]',
		semantic_score REAL NOT NULL DEFAULT 0,
		manual_score REAL,
		manual_feedback TEXT NOT NULL DEFAULT '',
		is_manually_reviewed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (script_id, number)
	);

	CREATE TABLE IF NOT EXISTS rubric_templates (
		type TEXT PRIMARY KEY,
		keywords TEXT NOT NULL DEFAULT '[]',
		criteria TEXT NOT NULL DEFAULT '[]',
		bonus_criteria TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_scripts_status ON scripts(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON auth_sessions(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateScript inserts a script with its pages and questions and
// returns the new ID. MaxPossibleScore is derived from the questions.
func (s *Store) CreateScript(sc *model.Script) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("create script: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO scripts (student_id, subject, exam_title, status, max_possible_score, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.StudentID, sc.Subject, sc.ExamTitle, string(model.StatusUploaded),
		sc.MaxScoreSum(), sc.UploadedBy, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert script: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("script id: %w", err)
	}

	for _, p := range sc.Pages {
		if _, err := tx.Exec(`
			INSERT INTO pages (script_id, number, image_ref) VALUES (?, ?, ?)`,
			id, p.Number, p.ImageRef); err != nil {
			return 0, fmt.Errorf("insert page %d: %w", p.Number, err)
		}
	}

	for _, q := range sc.Questions {
		kw, cr, bc, err := marshalRubric(q)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`
			INSERT INTO questions (script_id, number, text, type, max_score, method, keywords, criteria, bonus_criteria)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, q.Number, q.Text, q.Type, q.MaxScore, string(q.Method), kw, cr, bc); err != nil {
			return 0, fmt.Errorf("insert question %d: %w", q.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create script: %w", err)
	}
	return id, nil
}

func marshalRubric(q model.Question) (kw, cr, bc string, err error) {
	k, err := json.Marshal(q.Keywords)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal keywords: %w", err)
	}
	c, err := json.Marshal(q.Criteria)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal criteria: %w", err)
	}
	b, err := json.Marshal(q.BonusCriteria)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal bonus criteria: %w", err)
	}
	return string(k), string(c), string(b), nil
}

// GetScript loads the full aggregate. Returns (nil, nil) when the
// script does not exist.
func (s *Store) GetScript(id int64) (*model.Script, error) {
	sc := &model.Script{ID: id}
	var status string
	var uploadedBy, reviewedBy sql.NullInt64
	var processedAt, reviewedAt, submittedAt sql.NullTime

	err := s.db.QueryRow(`
		SELECT student_id, subject, exam_title, status, total_score, max_possible_score,
		       uploaded_by, reviewed_by, uploaded_at, processed_at, reviewed_at, submitted_at
		FROM scripts WHERE id = ?`, id).Scan(
		&sc.StudentID, &sc.Subject, &sc.ExamTitle, &status, &sc.TotalScore, &sc.MaxPossibleScore,
		&uploadedBy, &reviewedBy, &sc.UploadedAt, &processedAt, &reviewedAt, &submittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get script %d: %w", id, err)
	}

	sc.Status = model.ScriptStatus(status)
	if uploadedBy.Valid {
		sc.UploadedBy = uploadedBy.Int64
	}
	if reviewedBy.Valid {
		sc.ReviewedBy = &reviewedBy.Int64
	}
	if processedAt.Valid {
		sc.ProcessedAt = &processedAt.Time
	}
	if reviewedAt.Valid {
		sc.ReviewedAt = &reviewedAt.Time
	}
	if submittedAt.Valid {
		sc.SubmittedAt = &submittedAt.Time
	}

	if sc.Pages, err = s.loadPages(id); err != nil {
		return nil, err
	}
	if sc.Questions, err = s.loadQuestions(id); err != nil {
		return nil, err
	}
	if sc.Results, err = s.loadResults(id); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Store) loadPages(scriptID int64) ([]model.Page, error) {
	rows, err := s.db.Query(`
		SELECT number, image_ref, text, provider, confidence, processed_at
		FROM pages WHERE script_id = ? ORDER BY number`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		var processedAt sql.NullTime
		if err := rows.Scan(&p.Number, &p.ImageRef, &p.Text, &p.Provider, &p.Confidence, &processedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if processedAt.Valid {
			p.ProcessedAt = &processedAt.Time
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *Store) loadQuestions(scriptID int64) ([]model.Question, error) {
	rows, err := s.db.Query(`
		SELECT number, text, type, max_score, method, keywords, criteria, bonus_criteria
		FROM questions WHERE script_id = ? ORDER BY number`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var method, kw, cr, bc string
		if err := rows.Scan(&q.Number, &q.Text, &q.Type, &q.MaxScore, &method, &kw, &cr, &bc); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Method = model.ScoringMethod(method)
		if err := json.Unmarshal([]byte(kw), &q.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords for question %d: %w", q.Number, err)
		}
		if err := json.Unmarshal([]byte(cr), &q.Criteria); err != nil {
			return nil, fmt.Errorf("unmarshal criteria for question %d: %w", q.Number, err)
		}
		if err := json.Unmarshal([]byte(bc), &q.BonusCriteria); err != nil {
			return nil, fmt.Errorf("unmarshal bonus criteria for question %d: %w", q.Number, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) loadResults(scriptID int64) ([]model.QuestionResult, error) {
	rows, err := s.db.Query(`
		SELECT number, ai_score, ai_confidence, ai_feedback, matched_keywords,
		       semantic_score, manual_score, manual_feedback, is_manually_reviewed
		FROM question_results WHERE script_id = ? ORDER BY number`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	var results []model.QuestionResult
	for rows.Next() {
		var qr model.QuestionResult
		var matched string
		var manual sql.NullFloat64
		if err := rows.Scan(&qr.Number, &qr.AIScore, &qr.AIConfidence, &qr.AIFeedback,
			&matched, &qr.SemanticScore, &manual, &qr.ManualFeedback, &qr.IsManuallyReviewed); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(matched), &qr.MatchedKeywords); err != nil {
			return nil, fmt.Errorf("unmarshal matched keywords for question %d: %w", qr.Number, err)
		}
		if manual.Valid {
			qr.ManualScore = &manual.Float64
		}
		results = append(results, qr)
	}
	return results, rows.Err()
}

// ListScripts returns script summaries (no pages, questions, or
// results), newest first, optionally filtered by status.
func (s *Store) ListScripts(status model.ScriptStatus) ([]model.Script, error) {
	query := `
		SELECT id, student_id, subject, exam_title, status, total_score, max_possible_score, uploaded_at
		FROM scripts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var scripts []model.Script
	for rows.Next() {
		var sc model.Script
		var st string
		if err := rows.Scan(&sc.ID, &sc.StudentID, &sc.Subject, &sc.ExamTitle, &st,
			&sc.TotalScore, &sc.MaxPossibleScore, &sc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		sc.Status = model.ScriptStatus(st)
		scripts = append(scripts, sc)
	}
	return scripts, rows.Err()
}

// TransitionStatus atomically moves a script from one of the given
// states to another and reports whether the transition happened. A
// false return with nil error means the script was not in any of the
// allowed source states (or does not exist).
func (s *Store) TransitionStatus(id int64, to model.ScriptStatus, from ...model.ScriptStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s: no source states", to)
	}

	placeholders := strings.Repeat("?,", len(from))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), id)
	for _, f := range from {
		args = append(args, string(f))
	}

	res, err := s.db.Exec(
		`UPDATE scripts SET status = ? WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("transition script %d to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition script %d to %s: %w", id, to, err)
	}
	return n == 1, nil
}

// SetStatus forces a script's status without a guard. Used by the
// pipeline for failure states, where the script is known to be held
// by the in-flight run.
func (s *Store) SetStatus(id int64, status model.ScriptStatus) error {
	if _, err := s.db.Exec(`UPDATE scripts SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return fmt.Errorf("set script %d status %s: %w", id, status, err)
	}
	return nil
}

// UpdatePageText stores one page's consolidated extraction result.
func (s *Store) UpdatePageText(scriptID int64, pageNumber int, text, provider string, confidence float64) error {
	_, err := s.db.Exec(`
		UPDATE pages SET text = ?, provider = ?, confidence = ?, processed_at = ?
		WHERE script_id = ? AND number = ?`,
		text, provider, confidence, time.Now().UTC(), scriptID, pageNumber)
	if err != nil {
		return fmt.Errorf("update page %d/%d: %w", scriptID, pageNumber, err)
	}
	return nil
}

// MarkProcessed stamps the script's extraction completion time.
func (s *Store) MarkProcessed(id int64) error {
	if _, err := s.db.Exec(`UPDATE scripts SET processed_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark script %d processed: %w", id, err)
	}
	return nil
}

// SaveResults replaces the script's question results and total in one
// transaction.
func (s *Store) SaveResults(scriptID int64, results []model.QuestionResult, total float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM question_results WHERE script_id = ?`, scriptID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	for _, qr := range results {
		matched, err := json.Marshal(qr.MatchedKeywords)
		if err != nil {
			return fmt.Errorf("marshal matched keywords: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO question_results
			(script_id, number, ai_score, ai_confidence, ai_feedback, matched_keywords,
			 semantic_score, manual_score, manual_feedback, is_manually_reviewed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scriptID, qr.Number, qr.AIScore, qr.AIConfidence, qr.AIFeedback, string(matched),
			qr.SemanticScore, qr.ManualScore, qr.ManualFeedback, qr.IsManuallyReviewed); err != nil {
			return fmt.Errorf("insert result for question %d: %w", qr.Number, err)
		}
	}

	if _, err := tx.Exec(`UPDATE scripts SET total_score = ? WHERE id = ?`, total, scriptID); err != nil {
		return fmt.Errorf("update total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// SetManualOverride records a teacher's score for one question and
// recomputes the script total. Applying the same override again is a
// no-op on the resulting total.
func (s *Store) SetManualOverride(scriptID int64, questionNumber int, score float64, feedback string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("set override: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE question_results
		SET manual_score = ?, manual_feedback = ?, is_manually_reviewed = 1
		WHERE script_id = ? AND number = ?`,
		score, feedback, scriptID, questionNumber)
	if err != nil {
		return fmt.Errorf("set override %d/%d: %w", scriptID, questionNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if err := recomputeTotal(tx, scriptID); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearManualOverride removes a teacher's score so the fused score
// counts again, and recomputes the total.
func (s *Store) ClearManualOverride(scriptID int64, questionNumber int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("clear override: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE question_results
		SET manual_score = NULL, manual_feedback = '', is_manually_reviewed = 0
		WHERE script_id = ? AND number = ?`,
		scriptID, questionNumber)
	if err != nil {
		return fmt.Errorf("clear override %d/%d: %w", scriptID, questionNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if err := recomputeTotal(tx, scriptID); err != nil {
		return err
	}
	return tx.Commit()
}

// recomputeTotal sets total_score to the sum of each question's
// effective score (manual override when present, fused otherwise).
func recomputeTotal(tx *sql.Tx, scriptID int64) error {
	_, err := tx.Exec(`
		UPDATE scripts SET total_score = (
			SELECT COALESCE(SUM(COALESCE(manual_score, ai_score)), 0)
			FROM question_results WHERE script_id = ?
		) WHERE id = ?`, scriptID, scriptID)
	if err != nil {
		return fmt.Errorf("recompute total for script %d: %w", scriptID, err)
	}
	return nil
}

// SetReviewed marks a script reviewed by the given user. Only marked
// scripts can be reviewed.
func (s *Store) SetReviewed(id, reviewerID int64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE scripts SET status = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusReviewed), reviewerID, time.Now().UTC(), id, string(model.StatusMarked))
	if err != nil {
		return false, fmt.Errorf("review script %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetSubmitted finalizes a marked or reviewed script. Submission is
// terminal.
func (s *Store) SetSubmitted(id int64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE scripts SET status = ?, submitted_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusSubmitted), time.Now().UTC(), id,
		string(model.StatusMarked), string(model.StatusReviewed))
	if err != nil {
		return false, fmt.Errorf("submit script %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Stats summarizes the marking workload.
type Stats struct {
	ByStatus          map[string]int `json:"by_status"`
	Total             int            `json:"total"`
	AveragePercentage float64        `json:"average_percentage"`
}

// GetStats counts scripts per status and averages the percentage
// score over scripts that have been marked.
func (s *Store) GetStats() (*Stats, error) {
	st := &Stats{ByStatus: make(map[string]int)}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM scripts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("stats scan: %w", err)
		}
		st.ByStatus[status] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
		SELECT COALESCE(AVG(total_score * 100.0 / max_possible_score), 0)
		FROM scripts
		WHERE max_possible_score > 0 AND status IN (?, ?, ?)`,
		string(model.StatusMarked), string(model.StatusReviewed), string(model.StatusSubmitted)).
		Scan(&st.AveragePercentage)
	if err != nil {
		return nil, fmt.Errorf("stats average: %w", err)
	}
	return st, nil
}
