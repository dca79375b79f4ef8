package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labreport/internal/report"
	"labreport/internal/types"
)

var draftReq struct {
	subject     string
	manual      string
	style       string
	title       string
	researcher  string
	company     string
	achieved    string
	succeeded   bool
	skill       string
	currentStep string
	topK        int
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft a report from the manual and the chat log",
	Long: `Searches the manual's summaries, summarizes the experiment's chat log and
asks the LLM for a numbered report draft in a formal or personal tone.
The draft can be piped into 'labreport render'.`,
	Args: cobra.NoArgs,
	RunE: runDraft,
}

func init() {
	f := draftCmd.Flags()
	f.StringVar(&draftReq.subject, "subject", "", "Experiment id whose chat log is summarized")
	f.StringVar(&draftReq.manual, "manual", "", "Manual id to search")
	f.StringVar(&draftReq.style, "style", "formal", "Tone (formal, personal)")
	f.StringVar(&draftReq.title, "title", "", "Experiment title (required)")
	f.StringVar(&draftReq.researcher, "researcher", "", "Researcher name")
	f.StringVar(&draftReq.company, "company", "", "Company")
	f.StringVar(&draftReq.achieved, "achieved", "concluded", "Whether the objective was reached")
	f.BoolVar(&draftReq.succeeded, "success", false, "The experiment succeeded")
	f.StringVar(&draftReq.skill, "skill", "experienced", "Researcher experience (novice, experienced)")
	f.StringVar(&draftReq.currentStep, "step", "", "Current experiment step")
	f.IntVar(&draftReq.topK, "top-k", 3, "Manual passages to include")
	_ = draftCmd.MarkFlagRequired("title")
}

func runDraft(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	style, err := types.ParseReportStyle(draftReq.style)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	if a.llmErr != nil {
		return fmt.Errorf("draft needs an llm client: %w", a.llmErr)
	}

	text, err := a.pipeline.Draft(ctx, report.DraftRequest{
		SubjectID:   draftReq.subject,
		ManualID:    draftReq.manual,
		Style:       style,
		Title:       draftReq.title,
		Researcher:  draftReq.researcher,
		Company:     draftReq.company,
		Achieved:    draftReq.achieved,
		Succeeded:   draftReq.succeeded,
		SkillLevel:  draftReq.skill,
		CurrentStep: draftReq.currentStep,
		TopK:        draftReq.topK,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(text))
	return nil
}
