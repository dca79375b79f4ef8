package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labreport/internal/logging"
	"labreport/internal/types"
)

const (
	defaultDraftTopK  = 3
	draftChatLimit    = 200
	noManualSummary   = "No manual summary available."
	noChatSummary     = "No conversation log available."
	draftSystemPrompt = "You are an AI lab assistant that drafts experiment reports."
)

// DraftRequest carries the experiment information a draft is written from.
type DraftRequest struct {
	SubjectID   string
	ManualID    string
	Style       types.ReportStyle
	Title       string
	Researcher  string
	Company     string
	Achieved    string
	Succeeded   bool
	SkillLevel  string // novice, experienced
	CurrentStep string
	TopK        int
}

// Drafter produces report drafts with one completion call.
type Drafter struct {
	llm     types.LLMClient
	manuals types.ManualSearcher
	chats   types.ChatSummarizer
}

// NewDrafter returns a Drafter. manuals and chats may be nil.
func NewDrafter(llm types.LLMClient, manuals types.ManualSearcher, chats types.ChatSummarizer) *Drafter {
	return &Drafter{llm: llm, manuals: manuals, chats: chats}
}

// Draft gathers context and asks the model for a draft in the requested tone.
func (d *Drafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	if d.llm == nil {
		return "", errors.New("no llm client configured")
	}
	if req.Style == "" {
		req.Style = types.StyleFormal
	}

	manual := noManualSummary
	if d.manuals != nil && req.ManualID != "" {
		k := req.TopK
		if k <= 0 {
			k = defaultDraftTopK
		}
		passages, err := d.manuals.SearchManualText(ctx, req.ManualID, manualQuery(req), k)
		if err != nil {
			logging.ReportError("Manual search for %s failed: %v", req.ManualID, err)
		} else if len(passages) > 0 {
			manual = strings.Join(passages, "\n")
		}
	}

	chat := noChatSummary
	if d.chats != nil && req.SubjectID != "" {
		summary, err := d.chats.ChatSummary(ctx, req.SubjectID, draftChatLimit)
		if err != nil {
			logging.ReportError("Chat summary for %s failed: %v", req.SubjectID, err)
		} else if strings.TrimSpace(summary) != "" {
			chat = summary
		}
	}

	text, err := d.llm.CompleteWithSystem(ctx, draftSystemPrompt, draftPrompt(req, manual, chat))
	if err != nil {
		return "", fmt.Errorf("draft report: %w", err)
	}
	logging.ReportDebug("Drafted %q style=%s chars=%d", req.Title, req.Style, len(text))
	return text, nil
}

func manualQuery(req DraftRequest) string {
	if req.CurrentStep == "" {
		return fmt.Sprintf("Summary of the main contents of the '%s' experiment manual.", req.Title)
	}
	return fmt.Sprintf("Summary of the '%s' experiment manual. Current step: '%s'", req.Title, req.CurrentStep)
}

func draftPrompt(req DraftRequest, manual, chat string) string {
	tone, purpose := "formal register", "Write it in the style of an official company report."
	if req.Style == types.StylePersonal {
		tone, purpose = "personal, first-person register", "Write it in the style of a free-form personal lab journal."
	}
	outcome := "failure"
	if req.Succeeded {
		outcome = "success"
	}

	var b strings.Builder
	b.WriteString("[Experiment information]\n")
	fmt.Fprintf(&b, "- Manual ID: %s\n", req.ManualID)
	fmt.Fprintf(&b, "- Experiment title: %s\n", req.Title)
	fmt.Fprintf(&b, "- Researcher: %s\n", req.Researcher)
	fmt.Fprintf(&b, "- Company: %s\n", req.Company)
	fmt.Fprintf(&b, "- Objective achieved: %s\n", req.Achieved)
	fmt.Fprintf(&b, "- Outcome: %s\n", outcome)
	fmt.Fprintf(&b, "- Researcher experience: %s\n", req.SkillLevel)
	fmt.Fprintf(&b, "- Current step: %s\n\n", req.CurrentStep)
	fmt.Fprintf(&b, "[Conversation log summary]\n%s\n\n", chat)
	fmt.Fprintf(&b, "[Related manual summary]\n%s\n\n", manual)
	b.WriteString("# Report sections:\n")
	fmt.Fprintf(&b, "1. Experiment title: use '%s'\n", req.Title)
	b.WriteString("2. Objective: infer from the conversation and manual summaries\n")
	b.WriteString("3. Equipment: based on the conversation or manual summaries\n")
	b.WriteString("4. Reagents: based on the conversation or manual summaries\n")
	b.WriteString("5. Procedure: focus on the steps actually performed\n")
	b.WriteString("6. Discussion\n")
	b.WriteString("    - Main issues and how they were resolved\n")
	fmt.Fprintf(&b, "    - Outcome: reflect the result '%s'\n", outcome)
	b.WriteString("    - Failure analysis: if the experiment failed, analyze the cause from the conversation\n")
	b.WriteString("    - Overall reflection and closing sentence\n\n")
	fmt.Fprintf(&b, "- Use a %s. %s\n", tone, purpose)
	b.WriteString("- Number each section with markdown numbering and separate sections with line breaks.\n")
	b.WriteString("- Write at least 500 characters.\n")
	return b.String()
}
