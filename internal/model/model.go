package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// ScriptStatus represents the lifecycle state of a script.
type ScriptStatus string

const (
	StatusUploaded      ScriptStatus = "uploaded"
	StatusProcessing    ScriptStatus = "processing"
	StatusMarked        ScriptStatus = "marked"
	StatusReviewed      ScriptStatus = "reviewed"
	StatusSubmitted     ScriptStatus = "submitted"
	StatusOCRFailed     ScriptStatus = "ocr_failed"
	StatusMarkingFailed ScriptStatus = "marking_failed"
)

// CanStartOCR reports whether an OCR run may be triggered from this state.
func (s ScriptStatus) CanStartOCR() bool {
	return s == StatusUploaded || s == StatusOCRFailed
}

// CanStartMarking reports whether a marking run may be triggered from this state.
func (s ScriptStatus) CanStartMarking() bool {
	return s == StatusUploaded || s == StatusMarkingFailed
}

// IsTerminal reports whether the script accepts no further automated mutation.
func (s ScriptStatus) IsTerminal() bool {
	return s == StatusSubmitted
}

// ScoringMethod tags how a question is primarily scored.
type ScoringMethod string

const (
	MethodKeyword    ScoringMethod = "keyword"
	MethodSemantic   ScoringMethod = "semantic"
	MethodNumeric    ScoringMethod = "numeric"
	MethodStructural ScoringMethod = "structural"
)

// Keyword is one weighted rubric keyword.
type Keyword struct {
	Word     string   `json:"word"`
	Weight   float64  `json:"weight"`
	Synonyms []string `json:"synonyms,omitempty"`
	Required bool     `json:"required"`
}

// Criterion is one scoring criterion with its point value.
type Criterion struct {
	Criterion string  `json:"criterion"`
	Points    float64 `json:"points"`
}

// BonusCriterion awards extra points when satisfied, on top of the base score.
type BonusCriterion struct {
	Criterion   string  `json:"criterion"`
	BonusPoints float64 `json:"bonus_points"`
}

// Question represents one rubric item of a script.
type Question struct {
	Number        int              `json:"question_number"`
	Text          string           `json:"question_text"`
	Type          string           `json:"question_type,omitempty"`
	MaxScore      int              `json:"max_score"`
	Method        ScoringMethod    `json:"scoring_method,omitempty"`
	Keywords      []Keyword        `json:"keywords,omitempty"`
	Criteria      []Criterion      `json:"scoring_criteria,omitempty"`
	BonusCriteria []BonusCriterion `json:"bonus_criteria,omitempty"`
}

// Page represents one scanned page of a script.
type Page struct {
	Number      int        `json:"page_number"`
	ImageRef    string     `json:"image_ref"`
	Text        string     `json:"ocr_text"`
	Provider    string     `json:"ocr_provider,omitempty"`
	Confidence  float64    `json:"ocr_confidence"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// AnalyzerResult is the outcome of a single analyzer for one question.
// It is ephemeral: only the fused QuestionResult is persisted.
type AnalyzerResult struct {
	Analyzer        string
	Score           float64
	Confidence      float64
	MatchedKeywords []string
	MissingRequired []string
	Similarity      float64
	Feedback        string
	Raw             string
}

// Abstained reports whether the analyzer produced no usable score.
// An abstaining analyzer is excluded from fusion weighting but still
// contributes its confidence to the fused confidence.
func (r AnalyzerResult) Abstained() bool {
	return r.Score == 0
}

// QuestionResult is the persisted marking outcome for one question.
type QuestionResult struct {
	Number             int      `json:"question_number"`
	AIScore            float64  `json:"ai_score"`
	AIConfidence       float64  `json:"confidence"`
	AIFeedback         string   `json:"ai_feedback"`
	MatchedKeywords    []string `json:"keywords,omitempty"`
	SemanticScore      float64  `json:"semantic_score"`
	ManualScore        *float64 `json:"manual_score,omitempty"`
	ManualFeedback     string   `json:"manual_feedback,omitempty"`
	IsManuallyReviewed bool     `json:"is_manually_reviewed"`
}

// FinalScore returns the score used for totalling: the manual override when
// present, the fused AI score otherwise.
func (r QuestionResult) FinalScore() float64 {
	if r.ManualScore != nil {
		return *r.ManualScore
	}
	return r.AIScore
}

// Script represents one submitted exam instance with its pages, rubric,
// and per-question results.
type Script struct {
	ID               int64            `json:"id"`
	StudentID        string           `json:"student_id"`
	Subject          string           `json:"subject"`
	ExamTitle        string           `json:"exam_title"`
	Status           ScriptStatus     `json:"status"`
	Pages            []Page           `json:"pages"`
	Questions        []Question       `json:"questions"`
	Results          []QuestionResult `json:"results,omitempty"`
	TotalScore       float64          `json:"total_score"`
	MaxPossibleScore int              `json:"max_possible_score"`
	UploadedBy       int64            `json:"uploaded_by"`
	ReviewedBy       *int64           `json:"reviewed_by,omitempty"`
	UploadedAt       time.Time        `json:"uploaded_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	ReviewedAt       *time.Time       `json:"reviewed_at,omitempty"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
}

// HasExtractedText reports whether at least one page carries non-empty OCR text.
func (s *Script) HasExtractedText() bool {
	for _, p := range s.Pages {
		if len(p.Text) > 0 {
			return true
		}
	}
	return false
}

// PercentageScore returns the total score as a percentage of the maximum.
func (s *Script) PercentageScore() float64 {
	if s.MaxPossibleScore == 0 {
		return 0
	}
	return s.TotalScore / float64(s.MaxPossibleScore) * 100
}

// MaxScoreSum returns the sum of question maximums.
func (s *Script) MaxScoreSum() int {
	total := 0
	for _, q := range s.Questions {
		total += q.MaxScore
	}
	return total
}

// Result returns the stored result for a question number, or nil.
func (s *Script) Result(questionNumber int) *QuestionResult {
	for i := range s.Results {
		if s.Results[i].Number == questionNumber {
			return &s.Results[i]
		}
	}
	return nil
}

// PipelineConfig holds runtime pipeline parameters injected at construction.
type PipelineConfig struct {
	OCRProviders         []string      // ordered provider ids, e.g. ["tesseract", "vision"]
	LanguageHint         string        // language hint passed to providers, e.g. "eng"
	ExternalModelEnabled bool          // run the external-model analyzer
	FallbackOnAbstain    bool          // substitute a conservative heuristic score when the external model fails
	ProviderTimeout      time.Duration // mandatory per-call timeout for OCR and model calls
	DataDir              string        // root directory for stored page images
}

// QuestionImport is used for loading a rubric from JSON.
type QuestionImport struct {
	Number        int              `json:"question_number"`
	Text          string           `json:"question_text"`
	Type          string           `json:"question_type"`
	MaxScore      int              `json:"max_score"`
	Method        ScoringMethod    `json:"scoring_method"`
	Keywords      []Keyword        `json:"keywords"`
	Criteria      []Criterion      `json:"scoring_criteria"`
	BonusCriteria []BonusCriterion `json:"bonus_criteria"`
}

// ToQuestion converts an imported rubric entry to a Question.
func (qi QuestionImport) ToQuestion() Question {
	return Question{
		Number:        qi.Number,
		Text:          qi.Text,
		Type:          qi.Type,
		MaxScore:      qi.MaxScore,
		Method:        qi.Method,
		Keywords:      qi.Keywords,
		Criteria:      qi.Criteria,
		BonusCriteria: qi.BonusCriteria,
	}
}
