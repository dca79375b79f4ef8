package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"labreport/internal/aggregate"
	"labreport/internal/analysis"
	"labreport/internal/config"
	"labreport/internal/embedding"
	"labreport/internal/eventlog"
	"labreport/internal/layout"
	"labreport/internal/llm"
	"labreport/internal/logging"
	"labreport/internal/report"
	"labreport/internal/store"
	"labreport/internal/tools"
	reporttools "labreport/internal/tools/report"
	"labreport/internal/types"
)

// app holds the long-lived collaborators of one CLI invocation. The LLM
// client is built once here and shared by every strategy.
type app struct {
	cfg          *config.Config
	ws           string
	store        *store.LocalStore
	events       *eventlog.FileSource
	llm          types.LLMClient
	llmErr       error
	orchestrator *analysis.Orchestrator
	engine       *layout.Engine
	pipeline     *report.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, ws: ws}

	a.store, err = store.NewLocalStore(cfg.Store.Driver, a.path(cfg.Store.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		logger.Warn("Embedding engine unavailable, manual search falls back to keywords", zap.Error(err))
	} else if engine != nil {
		a.store.SetEmbeddingEngine(engine)
	}

	a.events = eventlog.NewFileSource(a.path(cfg.EventLog.Path))

	a.llm, a.llmErr = llm.NewClient(ctx, llm.ConfigFrom(cfg.LLM, cfg.GetLLMTimeout()))
	if a.llmErr != nil {
		logger.Warn("LLM client unavailable", zap.Error(a.llmErr))
		logging.BootWarn("LLM client unavailable: %v", a.llmErr)
	}

	registry := tools.NewRegistry()
	if err := reporttools.RegisterAll(registry, reporttools.Deps{
		Manuals:   a.store,
		Subjects:  a.store,
		Events:    a.events,
		Chats:     a.store,
		MaxEvents: cfg.Analysis.MaxStructuredLogs,
	}); err != nil {
		a.close()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	opts := []analysis.Option{analysis.WithTimeout(cfg.GetAnalysisTimeout())}
	if cfg.Analysis.PersistResults {
		opts = append(opts, analysis.WithResultSink(a.store))
	}
	a.orchestrator = analysis.NewOrchestrator(
		a.store,
		aggregate.New(a.events, a.store, cfg.Analysis.MaxStructuredLogs),
		&analysis.LLMStrategyFactory{
			Client:        a.llm,
			ClientErr:     a.llmErr,
			Tools:         registry,
			MaxIterations: cfg.Analysis.MaxIterations,
		},
		opts...,
	)

	a.engine = layout.NewEngine(a.layoutConfig())
	a.pipeline = report.NewPipeline(a.orchestrator, a.engine, a.store, report.NewDrafter(a.llm, a.store, a.store))
	return a, nil
}

func (a *app) layoutConfig() layout.Config {
	fonts := layout.Fonts{}
	if a.cfg.Report.FontPath != "" {
		fonts.Regular = a.path(a.cfg.Report.FontPath)
	}
	if a.cfg.Report.BoldFontPath != "" {
		fonts.Bold = a.path(a.cfg.Report.BoldFontPath)
	}
	return layout.Config{
		ProductName: a.cfg.Report.ProductName,
		OutputDir:   a.path(a.cfg.Report.OutputDir),
		Fonts:       fonts,
	}
}

// recorderFor returns a Recorder appending to the configured event log.
func (a *app) recorderFor() *eventlog.Recorder {
	return eventlog.NewRecorder(a.path(a.cfg.EventLog.Path))
}

// path resolves p against the workspace.
func (a *app) path(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.ws, p)
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Closing store failed", zap.Error(err))
		}
	}
}
