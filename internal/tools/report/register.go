package report

import (
	"labreport/internal/logging"
	"labreport/internal/tools"
	"labreport/internal/types"
)

// Deps are the data sources the report tools read. Nil fields disable the
// tools that need them.
type Deps struct {
	Manuals  types.ManualSearcher
	Subjects types.Resolver
	Events   types.StructuredLogSource
	Chats    types.ChatSummarizer

	// MaxEvents caps structured entries returned by analyze_experiment_logs.
	MaxEvents int
}

// RegisterAll registers every report tool whose dependencies are present.
func RegisterAll(registry *tools.Registry, deps Deps) error {
	var all []*tools.Tool
	if deps.Manuals != nil {
		all = append(all, SearchManualContextTool(deps.Manuals))
	}
	if deps.Subjects != nil {
		all = append(all, ExperimentDataLookupTool(deps.Subjects))
		all = append(all, AnalyzeExperimentLogsTool(deps))
	}

	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	logging.Tools("Registered %d report tools", len(all))
	return nil
}
