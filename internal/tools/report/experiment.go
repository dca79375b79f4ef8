package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labreport/internal/logging"
	"labreport/internal/tools"
	"labreport/internal/types"
)

const defaultMaxEvents = 20

// ExperimentDataLookupTool returns a tool that describes a subject.
func ExperimentDataLookupTool(resolver types.Resolver) *tools.Tool {
	return &tools.Tool{
		Name:        "experiment_data_lookup",
		Description: "Look up an experiment's name, owner, creation time and description",
		Category:    tools.CategoryLogs,
		Priority:    70,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := tools.StringArg(args, "experiment_id")
			if err != nil {
				return "", err
			}
			subj, err := resolver.Resolve(ctx, id)
			if errors.Is(err, types.ErrSubjectNotFound) {
				return fmt.Sprintf("Experiment %q not found.", id), nil
			}
			if err != nil {
				return "", err
			}
			return describeSubject(subj), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"experiment_id"},
			Properties: map[string]tools.Property{
				"experiment_id": {Type: "string", Description: "Experiment identifier"},
			},
		},
	}
}

// AnalyzeExperimentLogsTool returns a tool that summarizes a subject's
// structured events and chat log.
func AnalyzeExperimentLogsTool(deps Deps) *tools.Tool {
	return &tools.Tool{
		Name:        "analyze_experiment_logs",
		Description: "Return the recent structured events and the Q&A chat summary of an experiment",
		Category:    tools.CategoryLogs,
		Priority:    60,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeAnalyzeLogs(ctx, deps, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"experiment_id"},
			Properties: map[string]tools.Property{
				"experiment_id": {Type: "string", Description: "Experiment identifier"},
			},
		},
	}
}

func executeAnalyzeLogs(ctx context.Context, deps Deps, args map[string]any) (string, error) {
	id, err := tools.StringArg(args, "experiment_id")
	if err != nil {
		return "", err
	}
	subj, err := deps.Subjects.Resolve(ctx, id)
	if errors.Is(err, types.ErrSubjectNotFound) {
		return fmt.Sprintf("Experiment %q not found.", id), nil
	}
	if err != nil {
		return "", err
	}

	limit := deps.MaxEvents
	if limit <= 0 {
		limit = defaultMaxEvents
	}

	var b strings.Builder
	if deps.Events != nil && subj.OwnerID != "" {
		entries, err := deps.Events.FetchRecent(ctx, subj.OwnerID, limit)
		if err != nil {
			logging.ToolsWarn("analyze_experiment_logs: event fetch failed: %v", err)
		}
		fmt.Fprintf(&b, "Structured events (%d):\n", len(entries))
		for _, e := range entries {
			ts := e.Timestamp
			if len(ts) > 16 {
				ts = ts[:16]
			}
			fmt.Fprintf(&b, "[%s] [%s]: %s\n", ts, e.Kind, e.Content)
		}
	}

	if deps.Chats != nil {
		summary, err := deps.Chats.ChatSummary(ctx, subj.ID, 0)
		if err != nil {
			return "", fmt.Errorf("chat summary: %w", err)
		}
		if strings.TrimSpace(summary) == "" {
			fmt.Fprintf(&b, "No chat log summary for experiment %q.\n", subj.ID)
		} else {
			b.WriteString("Chat summary:\n")
			b.WriteString(summary)
		}
	}

	if b.Len() == 0 {
		return fmt.Sprintf("No logs available for experiment %q.", subj.ID), nil
	}
	return b.String(), nil
}

func describeSubject(s *types.Subject) string {
	owner := s.OwnerID
	if owner == "" {
		owner = "N/A"
	}
	desc := s.Description
	if desc == "" {
		desc = "N/A"
	}
	return fmt.Sprintf("Experiment: %s\nID: %s\nOwner: %s\nCreated: %s\nDescription: %s",
		s.Name, s.ID, owner, s.CreatedAt.Format("2006-01-02 15:04:05"), desc)
}
