// Package handler exposes the marking pipeline as a JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/model"
	"github.com/scriptmark/scriptmark/internal/notify"
	"github.com/scriptmark/scriptmark/internal/pipeline"
	"github.com/scriptmark/scriptmark/internal/storage"
	"github.com/scriptmark/scriptmark/internal/store"
)

// maxUploadBytes bounds a multipart script upload (all pages).
const maxUploadBytes = 64 << 20

// Handler holds the API's collaborators.
type Handler struct {
	store *store.Store
	files *storage.Files
	orch  *pipeline.Orchestrator
	hub   *notify.Hub
}

func New(st *store.Store, files *storage.Files, orch *pipeline.Orchestrator, hub *notify.Hub) *Handler {
	return &Handler{store: st, files: files, orch: orch, hub: hub}
}

// Router builds the route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(i18n.Middleware)

	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Route("/api/scripts", func(r chi.Router) {
			r.Post("/", h.handleUploadScript)
			r.Get("/", h.handleListScripts)

			r.Route("/{scriptID}", func(r chi.Router) {
				r.Get("/", h.handleGetScript)
				r.Get("/results", h.handleGetResults)
				r.Post("/ocr", h.handleTriggerOCR)
				r.Post("/mark", h.handleTriggerMarking)
				r.Put("/review", h.handleReview)
				r.Put("/submit", h.handleSubmit)
				r.Put("/questions/{questionNumber}/override", h.handleSetOverride)
				r.Delete("/questions/{questionNumber}/override", h.handleClearOverride)
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Use(h.requireRole(model.UserRoleAdmin))
			r.Post("/", h.handleCreateUser)
		})

		r.Get("/api/stats", h.handleStats)
		r.Get("/api/export", h.handleExport)
		if h.hub != nil {
			r.Get("/ws", h.hub.ServeHTTP)
		}
	})

	return r
}

// handleUploadScript accepts a multipart form with a "metadata" JSON
// part (student, subject, exam title, questions) and one or more
// "pages" file parts in page order. On success the script is created
// and extraction starts in the background.
func (h *Handler) handleUploadScript(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var meta struct {
		StudentID string                 `json:"student_id"`
		Subject   string                 `json:"subject"`
		ExamTitle string                 `json:"exam_title"`
		Questions []model.QuestionImport `json:"questions"`
	}
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata")
		return
	}
	if meta.StudentID == "" || len(meta.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "student_id and questions are required")
		return
	}

	pageFiles := r.MultipartForm.File["pages"]
	if len(pageFiles) == 0 {
		writeError(w, http.StatusBadRequest, "at least one page image is required")
		return
	}

	sc := &model.Script{
		StudentID:  meta.StudentID,
		Subject:    meta.Subject,
		ExamTitle:  meta.ExamTitle,
		UploadedBy: model.UserFromContext(r.Context()).ID,
	}
	for i, q := range meta.Questions {
		qq := q.ToQuestion()
		if qq.Number == 0 {
			qq.Number = i + 1
		}
		if qq.MaxScore <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("question %d needs a positive max score", qq.Number))
			return
		}
		sc.Questions = append(sc.Questions, qq)
	}

	for i, fh := range pageFiles {
		file, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable page upload")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable page upload")
			return
		}

		ref, err := h.files.Save(data)
		if err != nil {
			slog.Error("save page image", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		sc.Pages = append(sc.Pages, model.Page{Number: i + 1, ImageRef: ref})
	}

	id, err := h.store.CreateScript(sc)
	if err != nil {
		slog.Error("create script", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Fire and forget; the response does not wait for extraction.
	if err := h.orch.StartOCR(r.Context(), id); err != nil {
		slog.Error("start extraction after upload", "script", id, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": model.StatusUploaded})
}

func (h *Handler) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.store.ListScripts(model.ScriptStatus(r.URL.Query().Get("status")))
	if err != nil {
		slog.Error("list scripts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": scripts})
}

func (h *Handler) handleGetScript(w http.ResponseWriter, r *http.Request) {
	sc := h.loadScript(w, r)
	if sc == nil {
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// handleGetResults returns just the per-question marks and totals,
// the payload a review screen polls for.
func (h *Handler) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sc := h.loadScript(w, r)
	if sc == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          sc.ID,
		"status":      sc.Status,
		"total_score": sc.TotalScore,
		"max_score":   sc.MaxPossibleScore,
		"percentage":  sc.PercentageScore(),
		"results":     sc.Results,
	})
}

func (h *Handler) handleTriggerOCR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return
	}
	h.trigger(w, r, id, h.orch.StartOCR)
}

func (h *Handler) handleTriggerMarking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return
	}
	h.trigger(w, r, id, h.orch.StartMarking)
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request, id int64, start func(context.Context, int64) error) {
	switch err := start(r.Context(), id); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": model.StatusProcessing})
	case errors.Is(err, pipeline.ErrScriptNotFound):
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "ScriptNotFound"))
	case errors.Is(err, pipeline.ErrStateConflict):
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "InvalidStateTransition"))
	default:
		slog.Error("trigger pipeline", "script", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return
	}

	user := model.UserFromContext(r.Context())
	okT, err := h.store.SetReviewed(id, user.ID)
	if err != nil {
		slog.Error("review script", "script", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !okT {
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "InvalidStateTransition"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.StatusReviewed})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return
	}

	okT, err := h.store.SetSubmitted(id)
	if err != nil {
		slog.Error("submit script", "script", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !okT {
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "InvalidStateTransition"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.StatusSubmitted})
}

type overrideRequest struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

func (h *Handler) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return
	}
	qn, ok := pathInt(w, r, "questionNumber")
	if !ok {
		return
	}

	sc := h.loadScriptByID(w, r, id)
	if sc == nil {
		return
	}
	if sc.Status.IsTerminal() {
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "InvalidStateTransition"))
		return
	}

	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if q := questionByNumber(sc, qn); q == nil {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "QuestionNotFound"))
		return
	} else if req.Score < 0 || req.Score > float64(q.MaxScore) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("score must be between 0 and %d", q.MaxScore))
		return
	}

	if err := h.store.SetManualOverride(id, qn, req.Score, req.Feedback); err != nil {
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "QuestionNotFound"))
		return
	}

	sc, err := h.store.GetScript(id)
	if err != nil || sc == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "total_score": sc.TotalScore})
}

func (h *Handler) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return
	}
	qn, ok := pathInt(w, r, "questionNumber")
	if !ok {
		return
	}

	sc := h.loadScriptByID(w, r, id)
	if sc == nil {
		return
	}
	if sc.Status.IsTerminal() {
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "InvalidStateTransition"))
		return
	}

	if err := h.store.ClearManualOverride(id, qn); err != nil {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "QuestionNotFound"))
		return
	}

	sc, err := h.store.GetScript(id)
	if err != nil || sc == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "total_score": sc.TotalScore})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		slog.Error("stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="scripts.csv"`)
	status := model.ScriptStatus(r.URL.Query().Get("status"))
	if err := h.store.ExportCSV(w, status); err != nil {
		slog.Error("export", "error", err)
	}
}

// loadScript reads the script named by the scriptID path parameter,
// writing the error response itself when it returns nil.
func (h *Handler) loadScript(w http.ResponseWriter, r *http.Request) *model.Script {
	id, ok := pathID(w, r, "scriptID")
	if !ok {
		return nil
	}
	return h.loadScriptByID(w, r, id)
}

func (h *Handler) loadScriptByID(w http.ResponseWriter, r *http.Request, id int64) *model.Script {
	sc, err := h.store.GetScript(id)
	if err != nil {
		slog.Error("get script", "script", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "ScriptNotFound"))
		return nil
	}
	return sc
}

func questionByNumber(sc *model.Script, n int) *model.Question {
	for i := range sc.Questions {
		if sc.Questions[i].Number == n {
			return &sc.Questions[i]
		}
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid number")
		return 0, false
	}
	return n, true
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
