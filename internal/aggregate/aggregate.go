// Package aggregate merges an experiment's structured event log and its chat
// log into the text context handed to the analysis strategies.
package aggregate

import (
	"context"
	"fmt"
	"strings"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// Section headers and placeholders. Both sections are always emitted.
const (
	StructuredHeader      = "=== Experiment progress log (structured) ==="
	ChatHeader            = "=== Q&A chat log ==="
	NoStructuredLogs      = "No structured experiment logs."
	NoChatLogs            = "No chat logs."
	DefaultMaxStructured  = 100
	structuredTimestampTo = 16 // YYYY-MM-DDTHH:MM
	chatTimestampLayout   = "2006-01-02 15:04:05"
	notAvailable          = "N/A"
)

// ReportContext is the aggregated text for one analysis call.
type ReportContext struct {
	Text            string
	StructuredCount int
	ChatCount       int
}

// HasStructuredLogs reports whether any structured entry was included.
func (c *ReportContext) HasStructuredLogs() bool { return c.StructuredCount > 0 }

// HasChatLogs reports whether any chat message was included.
func (c *ReportContext) HasChatLogs() bool { return c.ChatCount > 0 }

// Aggregator builds ReportContexts. It holds no per-call state.
type Aggregator struct {
	events        types.StructuredLogSource
	chats         types.ChatLogSource
	maxStructured int
}

// New returns an Aggregator reading from events and chats. A nil source is
// treated as empty. maxStructured <= 0 uses DefaultMaxStructured.
func New(events types.StructuredLogSource, chats types.ChatLogSource, maxStructured int) *Aggregator {
	if maxStructured <= 0 {
		maxStructured = DefaultMaxStructured
	}
	return &Aggregator{events: events, chats: chats, maxStructured: maxStructured}
}

// Aggregate fetches both log sources for subj and renders the context.
// It performs no writes.
func (a *Aggregator) Aggregate(ctx context.Context, subj *types.Subject) (*ReportContext, error) {
	timer := logging.StartTimer(logging.CategoryAggregate, "Aggregate")
	defer timer.Stop()

	var entries []types.LogEntry
	if a.events != nil && subj.OwnerID != "" {
		var err error
		entries, err = a.events.FetchRecent(ctx, subj.OwnerID, a.maxStructured)
		if err != nil {
			return nil, fmt.Errorf("fetch structured logs for owner %s: %w", subj.OwnerID, err)
		}
		if len(entries) > a.maxStructured {
			entries = entries[len(entries)-a.maxStructured:]
		}
	}

	var msgs []types.ChatMessage
	if a.chats != nil {
		var err error
		msgs, err = a.chats.FetchAll(ctx, subj.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch chat logs for subject %s: %w", subj.ID, err)
		}
	}

	var b strings.Builder
	writeHeader(&b, subj)

	b.WriteString(StructuredHeader)
	b.WriteByte('\n')
	if len(entries) == 0 {
		b.WriteString(NoStructuredLogs)
		b.WriteByte('\n')
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", orNA(e.Kind), truncateTimestamp(e.Timestamp), e.Content)
	}

	b.WriteByte('\n')
	b.WriteString(ChatHeader)
	b.WriteByte('\n')
	if len(msgs) == 0 {
		b.WriteString(NoChatLogs)
		b.WriteByte('\n')
	}
	for _, m := range msgs {
		ts := notAvailable
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.Format(chatTimestampLayout)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Sender, ts, PlainText(m.Content))
	}

	logging.AggregateDebug("Aggregated subject=%s structured=%d chat=%d bytes=%d", subj.ID, len(entries), len(msgs), b.Len())
	return &ReportContext{
		Text:            b.String(),
		StructuredCount: len(entries),
		ChatCount:       len(msgs),
	}, nil
}

func writeHeader(b *strings.Builder, subj *types.Subject) {
	created := notAvailable
	if !subj.CreatedAt.IsZero() {
		created = subj.CreatedAt.Format(chatTimestampLayout)
	}
	fmt.Fprintf(b, "Experiment: %s\n", orNA(subj.Name))
	fmt.Fprintf(b, "Experiment ID: %s\n", subj.ID)
	fmt.Fprintf(b, "Owner ID: %s\n", orNA(subj.OwnerID))
	fmt.Fprintf(b, "Created: %s\n", created)
	fmt.Fprintf(b, "Description: %s\n\n", orNA(subj.Description))
}

func truncateTimestamp(ts string) string {
	if ts == "" {
		return notAvailable
	}
	if len(ts) > structuredTimestampTo {
		return ts[:structuredTimestampTo]
	}
	return ts
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
