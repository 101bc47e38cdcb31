// scriptmark grades scanned exam scripts: it extracts handwritten
// answers from page images, scores them against per-question rubrics
// with an ensemble of analyzers, and serves the results for teacher
// review.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scriptmark/scriptmark/internal/analyzer"
	"github.com/scriptmark/scriptmark/internal/handler"
	"github.com/scriptmark/scriptmark/internal/i18n"
	"github.com/scriptmark/scriptmark/internal/marking"
	"github.com/scriptmark/scriptmark/internal/model"
	"github.com/scriptmark/scriptmark/internal/notify"
	"github.com/scriptmark/scriptmark/internal/ocr"
	"github.com/scriptmark/scriptmark/internal/pipeline"
	"github.com/scriptmark/scriptmark/internal/preprocess"
	"github.com/scriptmark/scriptmark/internal/rubric"
	"github.com/scriptmark/scriptmark/internal/storage"
	"github.com/scriptmark/scriptmark/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "scriptmark",
		Short:        "Exam script marking pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "text", "log format (text|json)")
	root.PersistentFlags().String("db", "scriptmark.db", "sqlite database path")
	root.PersistentFlags().String("data-dir", "data", "directory for stored page images")
	root.PersistentFlags().String("lang", "en", "default interface and recognition language")

	root.AddCommand(serveCmd(), markCmd(), remarkCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// viperForCmd binds flags and SCRIPTMARK_* environment variables,
// then loads the optional config file.
func viperForCmd(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRIPTMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, err
	}

	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfg, err)
		}
	} else {
		v.SetConfigName("scriptmark")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scriptmark")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func setupLogging(v *viper.Viper) {
	var level slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(v.GetString("log-format")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// pipelineConfig gathers the runtime pipeline parameters shared by
// provider assembly, analyzer assembly, and the orchestrator.
func pipelineConfig(v *viper.Viper) model.PipelineConfig {
	return model.PipelineConfig{
		OCRProviders:         v.GetStringSlice("ocr-providers"),
		LanguageHint:         v.GetString("lang"),
		ExternalModelEnabled: v.GetBool("external-model-enabled"),
		FallbackOnAbstain:    v.GetBool("fallback-on-abstain"),
		ProviderTimeout:      v.GetDuration("provider-timeout"),
		DataDir:              v.GetString("data-dir"),
	}
}

// buildProviders assembles the configured OCR providers in order.
// Providers that are not configured are skipped with a warning rather
// than failing startup.
func buildProviders(v *viper.Viper, cfg model.PipelineConfig) []ocr.Provider {
	names := cfg.OCRProviders
	if len(names) == 0 {
		names = []string{"tesseract"}
	}

	var providers []ocr.Provider
	for _, name := range names {
		switch name {
		case "tesseract":
			providers = append(providers, ocr.NewTesseract())
		case "vision":
			p, err := ocr.NewVision(
				v.GetString("openai-api-key"),
				v.GetString("openai-base-url"),
				v.GetString("vision-model"))
			if err != nil {
				slog.Warn("vision provider not configured, skipping")
				continue
			}
			providers = append(providers, p)
		case "remote":
			p, err := ocr.NewRemote(v.GetString("remote-ocr-url"))
			if err != nil {
				slog.Warn("remote provider not configured, skipping")
				continue
			}
			providers = append(providers, p)
		default:
			slog.Warn("unknown ocr provider", "name", name)
		}
	}
	return providers
}

func buildAnalyzers(v *viper.Viper, cfg model.PipelineConfig, subject string) []analyzer.Analyzer {
	analyzers := []analyzer.Analyzer{
		analyzer.NewKeyword(),
		analyzer.NewSemantic(),
		analyzer.NewStructure(),
	}
	if cfg.ExternalModelEnabled {
		analyzers = append(analyzers, analyzer.NewExternal(analyzer.ExternalConfig{
			APIKey:          v.GetString("openai-api-key"),
			BaseURL:         v.GetString("openai-base-url"),
			Model:           v.GetString("grading-model"),
			Subject:         subject,
			FallbackOnError: cfg.FallbackOnAbstain,
			Timeout:         cfg.ProviderTimeout,
		}))
	}
	return analyzers
}

// seedAdmin creates the initial admin account on an empty user table.
func seedAdmin(st *store.Store, v *viper.Viper) error {
	n, err := st.CountUsers()
	if err != nil || n > 0 {
		return err
	}

	password := v.GetString("admin-password")
	if password == "" {
		slog.Warn("no users exist and no admin-password configured, skipping admin seed")
		return nil
	}
	if _, err := st.CreateUser("admin", "Administrator", password, model.UserRoleAdmin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("seeded initial admin user")
	return nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the marking API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := viperForCmd(cmd)
			if err != nil {
				return err
			}
			setupLogging(v)

			if err := i18n.Init(v.GetString("lang")); err != nil {
				return err
			}

			st, err := store.Open(v.GetString("db"))
			if err != nil {
				return err
			}
			defer st.Close()

			if err := seedAdmin(st, v); err != nil {
				return err
			}

			cfg := pipelineConfig(v)

			files, err := storage.NewFiles(cfg.DataDir)
			if err != nil {
				return err
			}

			templates := rubric.NewRegistry()
			if err := st.LoadRubricTemplates(templates); err != nil {
				return err
			}

			engine := marking.NewEngine(buildAnalyzers(v, cfg, v.GetString("subject")), templates)
			hub := notify.NewHub()

			orch := pipeline.NewOrchestrator(pipeline.Config{
				Store:     st,
				Images:    files,
				Engine:    engine,
				Notifier:  hub,
				Providers: buildProviders(v, cfg),
				Params:    cfg,
			})

			addr := v.GetString("addr")
			if addr == "" {
				addr = ":8080"
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.New(st, files, orch, hub).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("server listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown", "error", err)
			}
			orch.Wait()
			return nil
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("admin-password", "", "password for the seeded admin user")
	cmd.Flags().StringSlice("ocr-providers", []string{"tesseract"}, "ordered OCR providers (tesseract|vision|remote)")
	cmd.Flags().String("openai-api-key", "", "API key for vision extraction and external grading")
	cmd.Flags().String("openai-base-url", "", "override the OpenAI-compatible API base URL")
	cmd.Flags().String("vision-model", "", "model for vision extraction")
	cmd.Flags().String("grading-model", "", "model for external grading")
	cmd.Flags().String("remote-ocr-url", "", "endpoint of a self-hosted recognition service")
	cmd.Flags().Bool("external-model-enabled", false, "enable the external grading analyzer")
	cmd.Flags().Bool("fallback-on-abstain", false, "substitute a heuristic score when external grading fails")
	cmd.Flags().Duration("provider-timeout", 90*time.Second, "per-provider timeout for one page")
	cmd.Flags().String("subject", "", "default subject used in grading prompts")
	return cmd
}

// markCmd grades a single script from local files without a server or
// database: page images plus a rubric JSON in, scored results out.
func markCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark --rubric rubric.json page1.png [page2.png ...]",
		Short: "Grade one script from local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := viperForCmd(cmd)
			if err != nil {
				return err
			}
			setupLogging(v)

			if err := i18n.Init(v.GetString("lang")); err != nil {
				return err
			}

			rubricPath := v.GetString("rubric")
			if rubricPath == "" {
				return errors.New("--rubric is required")
			}
			data, err := os.ReadFile(rubricPath)
			if err != nil {
				return fmt.Errorf("read rubric: %w", err)
			}
			var imports []model.QuestionImport
			if err := json.Unmarshal(data, &imports); err != nil {
				return fmt.Errorf("parse rubric: %w", err)
			}

			sc := &model.Script{StudentID: "local"}
			for i, qi := range imports {
				q := qi.ToQuestion()
				if q.Number == 0 {
					q.Number = i + 1
				}
				sc.Questions = append(sc.Questions, q)
			}

			cfg := pipelineConfig(v)
			providers := buildProviders(v, cfg)
			ctx := cmd.Context()
			for i, path := range args {
				img, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read page %s: %w", path, err)
				}
				merged := ocr.Consolidate(ocr.Extract(ctx, providers,
					preprocess.Page(img), cfg.LanguageHint, cfg.ProviderTimeout))
				sc.Pages = append(sc.Pages, model.Page{
					Number:     i + 1,
					ImageRef:   path,
					Text:       merged.Text,
					Provider:   merged.Provider,
					Confidence: merged.Confidence,
				})
			}
			if !sc.HasExtractedText() {
				return errors.New("no text could be extracted from the given pages")
			}

			engine := marking.NewEngine(buildAnalyzers(v, cfg, v.GetString("subject")), rubric.NewRegistry())
			results, total := pipeline.MarkOnce(ctx, sc, engine)

			out := map[string]any{
				"total_score": total,
				"max_score":   sc.MaxScoreSum(),
				"results":     results,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().String("rubric", "", "rubric JSON file (required)")
	cmd.Flags().StringSlice("ocr-providers", []string{"tesseract"}, "ordered OCR providers (tesseract|vision|remote)")
	cmd.Flags().String("openai-api-key", "", "API key for vision extraction and external grading")
	cmd.Flags().String("openai-base-url", "", "override the OpenAI-compatible API base URL")
	cmd.Flags().String("vision-model", "", "model for vision extraction")
	cmd.Flags().String("grading-model", "", "model for external grading")
	cmd.Flags().String("remote-ocr-url", "", "endpoint of a self-hosted recognition service")
	cmd.Flags().Bool("external-model-enabled", false, "enable the external grading analyzer")
	cmd.Flags().Bool("fallback-on-abstain", false, "substitute a heuristic score when external grading fails")
	cmd.Flags().Duration("provider-timeout", 90*time.Second, "per-provider timeout for one page")
	cmd.Flags().String("subject", "", "subject used in grading prompts")
	return cmd
}

// remarkCmd marks every script awaiting marking, without starting the
// server. Useful after changing rubric templates or grading settings.
func remarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remark",
		Short: "Mark every script awaiting marking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := viperForCmd(cmd)
			if err != nil {
				return err
			}
			setupLogging(v)

			if err := i18n.Init(v.GetString("lang")); err != nil {
				return err
			}

			st, err := store.Open(v.GetString("db"))
			if err != nil {
				return err
			}
			defer st.Close()

			cfg := pipelineConfig(v)

			files, err := storage.NewFiles(cfg.DataDir)
			if err != nil {
				return err
			}

			templates := rubric.NewRegistry()
			if err := st.LoadRubricTemplates(templates); err != nil {
				return err
			}

			orch := pipeline.NewOrchestrator(pipeline.Config{
				Store:  st,
				Images: files,
				Engine: marking.NewEngine(buildAnalyzers(v, cfg, v.GetString("subject")), templates),
				Params: cfg,
			})

			marked, failed, err := orch.RunMarkingBatch(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("batch marking finished", "marked", marked, "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%d scripts failed marking", failed)
			}
			return nil
		},
	}

	cmd.Flags().String("openai-api-key", "", "API key for external grading")
	cmd.Flags().String("openai-base-url", "", "override the OpenAI-compatible API base URL")
	cmd.Flags().String("grading-model", "", "model for external grading")
	cmd.Flags().Bool("external-model-enabled", false, "enable the external grading analyzer")
	cmd.Flags().Bool("fallback-on-abstain", false, "substitute a heuristic score when external grading fails")
	cmd.Flags().Duration("provider-timeout", 90*time.Second, "per-call timeout for external grading")
	cmd.Flags().String("subject", "", "subject used in grading prompts")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export script totals as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := viperForCmd(cmd)
			if err != nil {
				return err
			}
			setupLogging(v)

			st, err := store.Open(v.GetString("db"))
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if path := v.GetString("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}
			return st.ExportCSV(out, model.ScriptStatus(v.GetString("status")))
		},
	}

	cmd.Flags().String("out", "", "output file (default stdout)")
	cmd.Flags().String("status", "", "only export scripts in this status")
	return cmd
}
