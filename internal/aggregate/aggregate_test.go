package aggregate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreport/internal/types"
)

type fakeEvents struct {
	entries   []types.LogEntry
	err       error
	calls     int
	lastLimit int
}

func (f *fakeEvents) FetchRecent(_ context.Context, _ string, limit int) ([]types.LogEntry, error) {
	f.calls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeChats struct {
	msgs []types.ChatMessage
	err  error
}

func (f *fakeChats) FetchAll(context.Context, string) ([]types.ChatMessage, error) {
	return f.msgs, f.err
}

func testSubject() *types.Subject {
	return &types.Subject{
		ID:        "exp-1",
		Name:      "Titration",
		OwnerID:   "u-7",
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAggregate_BothSectionsAlwaysPresent(t *testing.T) {
	ts := time.Date(2025, 3, 2, 10, 11, 12, 0, time.UTC)
	chats := &fakeChats{msgs: []types.ChatMessage{
		{Sender: types.SenderUser, Timestamp: ts, Content: "what next?"},
		{Sender: types.SenderAssistant, Timestamp: ts.Add(time.Minute), Content: "add indicator"},
		{Sender: types.SenderUser, Timestamp: ts.Add(2 * time.Minute), Content: "done"},
	}}

	rc, err := New(&fakeEvents{}, chats, 0).Aggregate(context.Background(), testSubject())
	require.NoError(t, err)

	assert.Equal(t, 0, rc.StructuredCount)
	assert.Equal(t, 3, rc.ChatCount)
	assert.False(t, rc.HasStructuredLogs())
	assert.True(t, rc.HasChatLogs())

	assert.Contains(t, rc.Text, StructuredHeader+"\n"+NoStructuredLogs)
	assert.Contains(t, rc.Text, ChatHeader)
	assert.NotContains(t, rc.Text, NoChatLogs)
	assert.Contains(t, rc.Text, "[user] 2025-03-02 10:11:12: what next?")
	assert.Contains(t, rc.Text, "[assistant] 2025-03-02 10:12:12: add indicator")
	assert.Less(t, strings.Index(rc.Text, "what next?"), strings.Index(rc.Text, "done"))
}

func TestAggregate_StructuredLines(t *testing.T) {
	events := &fakeEvents{entries: []types.LogEntry{
		{Kind: "step", Timestamp: "2025-03-02T10:11:12.345678", Content: "weighed sample"},
		{Kind: "", Timestamp: "", Content: "orphan"},
	}}

	rc, err := New(events, &fakeChats{}, 50).Aggregate(context.Background(), testSubject())
	require.NoError(t, err)

	assert.Equal(t, 50, events.lastLimit)
	assert.Contains(t, rc.Text, "[step] 2025-03-02T10:11: weighed sample")
	assert.Contains(t, rc.Text, "[N/A] N/A: orphan")
	assert.Contains(t, rc.Text, ChatHeader+"\n"+NoChatLogs)
}

func TestAggregate_CapsStructuredEntries(t *testing.T) {
	var entries []types.LogEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, types.LogEntry{Kind: "k", Timestamp: "2025-01-01T00:00", Content: string(rune('a' + i))})
	}
	rc, err := New(&fakeEvents{entries: entries}, nil, 2).Aggregate(context.Background(), testSubject())
	require.NoError(t, err)

	assert.Equal(t, 2, rc.StructuredCount)
	assert.NotContains(t, rc.Text, ": a\n")
	assert.Contains(t, rc.Text, ": e\n")
}

func TestAggregate_NoOwnerSkipsStructuredFetch(t *testing.T) {
	events := &fakeEvents{entries: []types.LogEntry{{Kind: "k", Content: "x"}}}
	subj := testSubject()
	subj.OwnerID = ""

	rc, err := New(events, &fakeChats{}, 0).Aggregate(context.Background(), subj)
	require.NoError(t, err)

	assert.Zero(t, events.calls)
	assert.Contains(t, rc.Text, "Owner ID: N/A")
	assert.Contains(t, rc.Text, "Description: N/A")
	assert.Contains(t, rc.Text, NoStructuredLogs)
}

func TestAggregate_SourceErrorsWrapped(t *testing.T) {
	boom := errors.New("disk gone")

	_, err := New(&fakeEvents{err: boom}, &fakeChats{}, 0).Aggregate(context.Background(), testSubject())
	assert.ErrorIs(t, err, boom)

	_, err = New(&fakeEvents{}, &fakeChats{err: boom}, 0).Aggregate(context.Background(), testSubject())
	assert.ErrorIs(t, err, boom)
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"a < b", "a < b"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"line<br>next", "line next"},
		{"<script>alert(1)</script>kept", "kept"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlainText(tt.in), "input %q", tt.in)
	}
}
