package report

import (
	"context"
	"fmt"
	"strings"

	"labreport/internal/logging"
	"labreport/internal/tools"
	"labreport/internal/types"
)

// searchTopK matches the number of summary chunks pulled into a draft.
const searchTopK = 3

// SearchManualContextTool returns a tool that searches a manual's summaries.
func SearchManualContextTool(searcher types.ManualSearcher) *tools.Tool {
	return &tools.Tool{
		Name:        "search_manual_context",
		Description: "Search the experiment manual for summary passages relevant to a query",
		Category:    tools.CategoryManual,
		Priority:    80,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeSearchManual(ctx, searcher, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"manual_id", "query"},
			Properties: map[string]tools.Property{
				"manual_id": {Type: "string", Description: "Manual identifier"},
				"query":     {Type: "string", Description: "What to look for in the manual"},
			},
		},
	}
}

func executeSearchManual(ctx context.Context, searcher types.ManualSearcher, args map[string]any) (string, error) {
	manualID, err := tools.StringArg(args, "manual_id")
	if err != nil {
		return "", err
	}
	query, err := tools.StringArg(args, "query")
	if err != nil {
		return "", err
	}
	if manualID == "" {
		return "", fmt.Errorf("%w: manual_id", tools.ErrMissingRequiredArg)
	}

	logging.ToolsDebug("search_manual_context: manual=%s query=%q", manualID, query)
	passages, err := searcher.SearchManualText(ctx, manualID, query, searchTopK)
	if err != nil {
		return "", fmt.Errorf("manual search: %w", err)
	}
	if len(passages) == 0 {
		return fmt.Sprintf("No manual context found for manual_id %q.", manualID), nil
	}
	return strings.Join(passages, "\n\n"), nil
}
