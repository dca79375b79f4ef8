package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"labreport/internal/analysis"
	"labreport/internal/layout"
	"labreport/internal/report"
	"labreport/internal/types"
)

var (
	analyzeJSON     bool
	analyzeExport   bool
	analyzeParallel int
	analyzeStyle    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [subject-id...]",
	Short: "Run the tiered analysis for one or more experiments",
	Long: `Aggregates each experiment's structured and chat logs and runs the tiered
analysis. Each subject is analyzed independently; results print in argument order.

With --export, successful analyses are also rendered to PDF and recorded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print results as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeExport, "export", false, "Render successful analyses to PDF")
	analyzeCmd.Flags().IntVar(&analyzeParallel, "parallel", 0, "Concurrent analyses (default: llm.max_concurrent)")
	analyzeCmd.Flags().StringVar(&analyzeStyle, "style", "formal", "Report style for --export (formal, personal)")
}

type analyzeOutput struct {
	SubjectID string              `json:"subject_id"`
	Status    int                 `json:"status"`
	Result    *analysis.Result    `json:"result"`
	Report    *types.ReportRecord `json:"report,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	style, err := types.ParseReportStyle(analyzeStyle)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	limit := analyzeParallel
	if limit <= 0 {
		limit = cfg.LLM.MaxConcurrent
	}
	if limit <= 0 {
		limit = 1
	}

	outputs := make([]analyzeOutput, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range args {
		g.Go(func() error {
			out := analyzeOutput{SubjectID: id}
			if analyzeExport {
				res, rec, err := a.pipeline.AnalyzeAndExport(gctx, id, report.ExportRequest{
					Meta: layout.Meta{Style: style, Status: "analysis"},
				})
				if err != nil {
					logger.Error("Export failed", zap.String("subject", id), zap.Error(err))
				}
				out.Result, out.Report = res, rec
			} else {
				out.Result = a.pipeline.Analyze(gctx, id)
			}
			out.Status = report.StatusFor(out.Result)
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outputs)
	}
	for _, out := range outputs {
		printResult(w, out.SubjectID, out.Result)
		if out.Report != nil {
			fmt.Fprintf(w, "report: %s (%s)\n", out.Report.FilePath, out.Report.ID)
		}
	}
	return nil
}
