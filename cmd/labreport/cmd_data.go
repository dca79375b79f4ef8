package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labreport/internal/store"
	"labreport/internal/types"
)

const maxChunkChars = 1200

var (
	ingestManualID string
	ingestKind     string
)

var ingestManualCmd = &cobra.Command{
	Use:   "ingest-manual [file]",
	Short: "Store a manual's text as searchable chunks",
	Long: `Splits the file into paragraph chunks and stores them under the manual id.
Chunks are embedded when an embedding provider is configured; otherwise
search falls back to keyword ranking.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestManual,
}

func init() {
	ingestManualCmd.Flags().StringVar(&ingestManualID, "manual-id", "", "Manual identifier (required)")
	ingestManualCmd.Flags().StringVar(&ingestKind, "kind", store.ChunkSummary, "Chunk type (summary, section)")
	_ = ingestManualCmd.MarkFlagRequired("manual-id")
}

func runIngestManual(cmd *cobra.Command, args []string) error {
	if ingestKind != store.ChunkSummary && ingestKind != store.ChunkSection {
		return fmt.Errorf("unknown chunk kind %q", ingestKind)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	chunks := chunkParagraphs(string(data), maxChunkChars)
	for _, c := range chunks {
		if _, err := a.store.StoreManualChunk(ctx, store.ManualChunk{ManualID: ingestManualID, Kind: ingestKind, Content: c}); err != nil {
			return err
		}
	}
	logger.Info("Manual ingested", zap.String("manual", ingestManualID), zap.Int("chunks", len(chunks)))
	fmt.Fprintf(cmd.OutOrStdout(), "stored %d chunks for manual %s\n", len(chunks), ingestManualID)
	return nil
}

// chunkParagraphs groups blank-line separated paragraphs into chunks of at
// most limit characters. A single paragraph longer than limit is kept whole.
func chunkParagraphs(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

var reportsUser string

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List a user's reports",
	Args:  cobra.NoArgs,
	RunE:  runReports,
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete [report-id]",
	Short: "Soft-delete a report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsDelete,
}

func init() {
	reportsCmd.PersistentFlags().StringVar(&reportsUser, "user", "", "Report owner (required)")
	_ = reportsCmd.MarkPersistentFlagRequired("user")
	reportsCmd.AddCommand(reportsDeleteCmd)
}

func runReports(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	list, err := a.pipeline.Reports(ctx, reportsUser)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no reports"))
		return nil
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STYLE", "CREATED", "FILE")
	for _, r := range list {
		t.Row(r.ID, string(r.ReportType), r.CreatedAt.Format(time.DateTime), r.FilePath)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func runReportsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pipeline.DeleteReport(ctx, reportsUser, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

var subjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Manage experiments and their chat logs",
}

var subjectAdd struct {
	id, name, owner, description string
}

var subjectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an experiment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		subj := &types.Subject{
			ID:          subjectAdd.id,
			Name:        subjectAdd.name,
			OwnerID:     subjectAdd.owner,
			Description: subjectAdd.description,
		}
		if err := a.store.SaveSubject(ctx, subj); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), subj.ID)
		return nil
	},
}

var chatAdd struct {
	sender, message string
}

var subjectChatCmd = &cobra.Command{
	Use:   "chat [subject-id]",
	Short: "Append a message to an experiment's chat log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		return a.store.AppendChat(ctx, args[0], types.ChatMessage{
			Sender:    types.Sender(chatAdd.sender),
			Timestamp: time.Now(),
			Content:   chatAdd.message,
		})
	},
}

func init() {
	subjectAddCmd.Flags().StringVar(&subjectAdd.id, "id", "", "Experiment id (default: generated)")
	subjectAddCmd.Flags().StringVar(&subjectAdd.name, "name", "", "Experiment name (required)")
	subjectAddCmd.Flags().StringVar(&subjectAdd.owner, "owner", "", "Owner user id")
	subjectAddCmd.Flags().StringVar(&subjectAdd.description, "description", "", "Description")
	_ = subjectAddCmd.MarkFlagRequired("name")

	subjectChatCmd.Flags().StringVar(&chatAdd.sender, "sender", string(types.SenderUser), "Sender (user, assistant)")
	subjectChatCmd.Flags().StringVarP(&chatAdd.message, "message", "m", "", "Message text (required)")
	_ = subjectChatCmd.MarkFlagRequired("message")

	subjectCmd.AddCommand(subjectAddCmd, subjectChatCmd)
}

var eventEntry struct {
	owner, kind, content string
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Append a structured entry to the experiment event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		a := &app{cfg: cfg, ws: ws}
		rec := a.recorderFor()
		return rec.Record(eventEntry.owner, types.LogEntry{Kind: eventEntry.kind, Content: eventEntry.content})
	},
}

func init() {
	eventCmd.Flags().StringVar(&eventEntry.owner, "owner", "", "Owner user id (required)")
	eventCmd.Flags().StringVar(&eventEntry.kind, "type", "step", "Entry type")
	eventCmd.Flags().StringVar(&eventEntry.content, "content", "", "Entry content (required)")
	_ = eventCmd.MarkFlagRequired("owner")
	_ = eventCmd.MarkFlagRequired("content")
}
