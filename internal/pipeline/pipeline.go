// Package pipeline drives a script through extraction and marking.
// The Orchestrator owns the status state machine: every run starts
// with a guarded transition into processing, so concurrent triggers
// and triggers on finished scripts are rejected before any work runs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/scriptmark/scriptmark/internal/marking"
	"github.com/scriptmark/scriptmark/internal/model"
	"github.com/scriptmark/scriptmark/internal/notify"
	"github.com/scriptmark/scriptmark/internal/ocr"
	"github.com/scriptmark/scriptmark/internal/preprocess"
	"github.com/scriptmark/scriptmark/internal/store"
)

var (
	// ErrStateConflict means the script's current status does not
	// allow the requested run (already in flight, or finished).
	ErrStateConflict = errors.New("script state does not allow this operation")

	// ErrScriptNotFound means the script does not exist.
	ErrScriptNotFound = errors.New("script not found")

	// ErrNoExtractedText means marking was attempted before any page
	// produced text.
	ErrNoExtractedText = errors.New("no extracted text to mark")
)

// ImageSource supplies page image bytes by reference.
type ImageSource interface {
	Read(ref string) ([]byte, error)
}

// Notifier receives lifecycle events. May be nil.
type Notifier interface {
	Publish(notify.Event)
}

// Orchestrator schedules OCR and marking runs. At most one run per
// script is in flight at a time, enforced by the status guard in the
// store plus an in-process registry used to wait for completion in
// tests and shutdown.
type Orchestrator struct {
	store    *store.Store
	images   ImageSource
	engine   *marking.Engine
	notifier Notifier

	providers []ocr.Provider
	params    model.PipelineConfig

	wg sync.WaitGroup
}

// Config wires an Orchestrator.
type Config struct {
	Store     *store.Store
	Images    ImageSource
	Engine    *marking.Engine
	Notifier  Notifier
	Providers []ocr.Provider
	// Params carries the runtime knobs (language hint, per-call
	// provider timeout) shared with provider and analyzer assembly.
	Params model.PipelineConfig
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Params.ProviderTimeout <= 0 {
		cfg.Params.ProviderTimeout = ocr.DefaultTimeout
	}
	return &Orchestrator{
		store:     cfg.Store,
		images:    cfg.Images,
		engine:    cfg.Engine,
		notifier:  cfg.Notifier,
		providers: cfg.Providers,
		params:    cfg.Params,
	}
}

// Wait blocks until all background runs have finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// StartOCR claims the script for extraction and runs it in the
// background. The claim (status transition to processing) happens
// before this returns, so a second trigger fails immediately with
// ErrStateConflict.
func (o *Orchestrator) StartOCR(ctx context.Context, scriptID int64) error {
	if err := o.claim(scriptID, model.StatusUploaded, model.StatusOCRFailed); err != nil {
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runOCR(context.WithoutCancel(ctx), scriptID)
	}()
	return nil
}

// StartMarking claims the script for marking and runs it in the
// background. Scripts whose extraction failed must be re-extracted
// first.
func (o *Orchestrator) StartMarking(ctx context.Context, scriptID int64) error {
	if err := o.claim(scriptID, model.StatusUploaded, model.StatusMarkingFailed); err != nil {
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runMarking(context.WithoutCancel(ctx), scriptID)
	}()
	return nil
}

// RunOCR claims the script and performs extraction synchronously.
func (o *Orchestrator) RunOCR(ctx context.Context, scriptID int64) error {
	if err := o.claim(scriptID, model.StatusUploaded, model.StatusOCRFailed); err != nil {
		return err
	}
	return o.runOCR(ctx, scriptID)
}

// RunMarking claims the script and marks it synchronously.
func (o *Orchestrator) RunMarking(ctx context.Context, scriptID int64) error {
	if err := o.claim(scriptID, model.StatusUploaded, model.StatusMarkingFailed); err != nil {
		return err
	}
	return o.runMarking(ctx, scriptID)
}

// RunMarkingBatch marks every script currently eligible for marking,
// one at a time. A script that fails lands in marking_failed and the
// batch moves on; a script claimed elsewhere in the meantime is
// skipped. Returns how many scripts were marked and how many failed.
func (o *Orchestrator) RunMarkingBatch(ctx context.Context) (marked, failed int, err error) {
	for _, status := range []model.ScriptStatus{model.StatusUploaded, model.StatusMarkingFailed} {
		scripts, err := o.store.ListScripts(status)
		if err != nil {
			return marked, failed, err
		}
		for _, sc := range scripts {
			if ctx.Err() != nil {
				return marked, failed, ctx.Err()
			}
			switch err := o.RunMarking(ctx, sc.ID); {
			case err == nil:
				marked++
			case errors.Is(err, ErrStateConflict), errors.Is(err, ErrScriptNotFound):
				// claimed or removed since listing
			default:
				failed++
			}
		}
	}
	return marked, failed, nil
}

// claim transitions the script into processing, distinguishing a
// missing script from a state conflict.
func (o *Orchestrator) claim(scriptID int64, from ...model.ScriptStatus) error {
	ok, err := o.store.TransitionStatus(scriptID, model.StatusProcessing, from...)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	sc, err := o.store.GetScript(scriptID)
	if err != nil {
		return err
	}
	if sc == nil {
		return ErrScriptNotFound
	}
	return ErrStateConflict
}

// runOCR extracts text for every page. A page whose providers all
// fail is left empty and the run continues; the run only lands in
// ocr_failed when no page at all produced text.
func (o *Orchestrator) runOCR(ctx context.Context, scriptID int64) error {
	log := slog.With("script", scriptID)
	log.Info("extraction started")

	sc, err := o.store.GetScript(scriptID)
	if err != nil || sc == nil {
		o.fail(scriptID, model.StatusOCRFailed, err)
		return err
	}

	anyText := false
	for _, page := range sc.Pages {
		text, provider, conf := o.extractPage(ctx, page, log)
		if text == "" {
			continue
		}
		if err := o.store.UpdatePageText(scriptID, page.Number, text, provider, conf); err != nil {
			log.Error("store page text", "page", page.Number, "error", err)
			continue
		}
		anyText = true
	}

	if !anyText {
		log.Warn("extraction produced no text")
		o.fail(scriptID, model.StatusOCRFailed, nil)
		o.publish(notify.EventOCRCompleted, scriptID, model.StatusOCRFailed)
		return errors.New("extraction produced no text")
	}

	if err := o.store.MarkProcessed(scriptID); err != nil {
		log.Error("mark processed", "error", err)
	}
	if err := o.store.SetStatus(scriptID, model.StatusUploaded); err != nil {
		o.fail(scriptID, model.StatusOCRFailed, err)
		return err
	}

	log.Info("extraction finished", "pages", len(sc.Pages))
	o.publish(notify.EventOCRCompleted, scriptID, model.StatusUploaded)
	return nil
}

// extractPage runs the provider fan-out for one page and consolidates
// the readings. Any failure, including a panic in a provider SDK, is
// contained to this page.
func (o *Orchestrator) extractPage(ctx context.Context, page model.Page, log *slog.Logger) (text, provider string, conf float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("page extraction panic", "page", page.Number, "panic", r)
			text, provider, conf = "", "", 0
		}
	}()

	img, err := o.images.Read(page.ImageRef)
	if err != nil {
		log.Warn("read page image", "page", page.Number, "error", err)
		return "", "", 0
	}

	img = preprocess.Page(img)
	results := ocr.Extract(ctx, o.providers, img, o.params.LanguageHint, o.params.ProviderTimeout)
	merged := ocr.Consolidate(results)
	return merged.Text, merged.Provider, merged.Confidence
}

// runMarking scores the script. Precondition: at least one page has
// extracted text; otherwise the run fails without invoking analyzers.
func (o *Orchestrator) runMarking(ctx context.Context, scriptID int64) error {
	log := slog.With("script", scriptID)
	log.Info("marking started")

	sc, err := o.store.GetScript(scriptID)
	if err != nil || sc == nil {
		o.fail(scriptID, model.StatusMarkingFailed, err)
		return err
	}

	if !sc.HasExtractedText() {
		log.Warn("marking attempted with no extracted text")
		o.fail(scriptID, model.StatusMarkingFailed, nil)
		o.publish(notify.EventMarkingCompleted, scriptID, model.StatusMarkingFailed)
		return ErrNoExtractedText
	}

	results, total := o.engine.MarkScript(ctx, sc)

	if err := o.store.SaveResults(scriptID, results, total); err != nil {
		o.fail(scriptID, model.StatusMarkingFailed, err)
		return err
	}
	if err := o.store.SetStatus(scriptID, model.StatusMarked); err != nil {
		o.fail(scriptID, model.StatusMarkingFailed, err)
		return err
	}

	log.Info("marking finished", "total", total, "questions", len(results))
	o.publish(notify.EventMarkingCompleted, scriptID, model.StatusMarked)
	return nil
}

func (o *Orchestrator) fail(scriptID int64, status model.ScriptStatus, cause error) {
	if cause != nil {
		slog.Error("pipeline run failed", "script", scriptID, "status", status, "error", cause)
	}
	if err := o.store.SetStatus(scriptID, status); err != nil {
		slog.Error("record failure status", "script", scriptID, "error", err)
	}
}

func (o *Orchestrator) publish(name string, scriptID int64, status model.ScriptStatus) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(notify.Event{Name: name, ScriptID: scriptID, Status: string(status)})
}

// MarkOnce runs segmentation and marking against an in-memory script
// without touching the store. Used by the one-shot CLI path.
func MarkOnce(ctx context.Context, sc *model.Script, engine *marking.Engine) ([]model.QuestionResult, float64) {
	return engine.MarkScript(ctx, sc)
}
