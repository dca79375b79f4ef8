package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"labreport/internal/layout"
	"labreport/internal/report"
	"labreport/internal/types"
)

// documentFlags are shared by render and export.
type documentFlags struct {
	input      string
	title      string
	author     string
	org        string
	status     string
	succeeded  bool
	failReason string
	style      string
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "Report body file ('-' for stdin)")
	cmd.Flags().StringVar(&f.title, "title", "", "Experiment title (required)")
	cmd.Flags().StringVar(&f.author, "author", "", "Researcher name")
	cmd.Flags().StringVar(&f.org, "org", "", "Organization")
	cmd.Flags().StringVar(&f.status, "status", layout.StatusConcluded, "Experiment status; 'concluded' shows the outcome")
	cmd.Flags().BoolVar(&f.succeeded, "success", false, "The experiment succeeded")
	cmd.Flags().StringVar(&f.failReason, "fail-reason", "", "Failure explanation for concluded, failed experiments")
	cmd.Flags().StringVar(&f.style, "style", "formal", "Report style (formal, personal)")
	_ = cmd.MarkFlagRequired("title")
}

func (f *documentFlags) meta() (layout.Meta, error) {
	style, err := types.ParseReportStyle(f.style)
	if err != nil {
		return layout.Meta{}, err
	}
	return layout.Meta{
		Title:        f.title,
		Author:       f.author,
		Organization: f.org,
		Status:       f.status,
		Succeeded:    f.succeeded,
		FailReason:   f.failReason,
		Style:        style,
	}, nil
}

func readBody(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

var (
	renderDoc    documentFlags
	renderDryRun bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a report body to a paginated PDF",
	Long: `Lays out a markdown-ish report body: numbered lines become headings,
lines starting with -, * or ▶ become bullets, and # / --- lines are skipped.

With --dry-run the layout is printed page by page instead of writing a PDF.`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	renderDoc.register(renderCmd)
	renderCmd.Flags().BoolVar(&renderDryRun, "dry-run", false, "Print the page layout instead of writing a PDF")
}

func runRender(cmd *cobra.Command, args []string) error {
	body, err := readBody(renderDoc.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	meta, err := renderDoc.meta()
	if err != nil {
		return err
	}

	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, ws: ws}
	lc := a.layoutConfig()

	if renderDryRun {
		var canvas *layout.MemoryCanvas
		engine := layout.NewEngine(layout.Config{ProductName: lc.ProductName, OutputDir: os.TempDir()},
			layout.WithCanvasFactory(layout.MemoryFactory(func(c *layout.MemoryCanvas) { canvas = c })))
		if _, err := engine.Render(body, meta); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), canvas.Dump())
		return nil
	}

	path, err := layout.NewEngine(lc).Render(body, meta)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

var (
	exportDoc    documentFlags
	exportUser   string
	exportManual string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a report body and record it for a user",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportDoc.register(exportCmd)
	exportCmd.Flags().StringVar(&exportUser, "user", "", "Owner of the report (required)")
	exportCmd.Flags().StringVar(&exportManual, "manual", "", "Manual the experiment followed")
	_ = exportCmd.MarkFlagRequired("user")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	body, err := readBody(exportDoc.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	meta, err := exportDoc.meta()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.pipeline.Export(ctx, report.ExportRequest{
		UserID:   exportUser,
		ManualID: exportManual,
		Body:     body,
		Meta:     meta,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rec.ID, rec.FilePath)
	return nil
}
