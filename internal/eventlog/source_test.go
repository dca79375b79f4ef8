package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreport/internal/types"
)

func TestFetchRecent_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "none.jsonl"))
	got, err := src.FetchRecent(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchRecent_FiltersAndCaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	lines := `{"user_id":"u1","type":"step","timestamp":"2024-03-01T10:00:00","content":"a"}
{"user_id":"u2","type":"step","timestamp":"2024-03-01T10:01:00","content":"other"}
not json
{"user_id":1,"type":"note","timestamp":"2024-03-01T10:02:00","content":"numeric owner"}

{"user_id":"u1","type":"warn","timestamp":"2024-03-01T10:03:00","content":"b"}
{"user_id":"u1","type":"step","timestamp":"2024-03-01T10:04:00","content":"c"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	src := NewFileSource(path)

	got, err := src.FetchRecent(context.Background(), "u1", 2)
	require.NoError(t, err)
	want := []types.LogEntry{
		{Kind: "warn", Timestamp: "2024-03-01T10:03:00", Content: "b"},
		{Kind: "step", Timestamp: "2024-03-01T10:04:00", Content: "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchRecent mismatch (-want +got):\n%s", diff)
	}

	numeric, err := src.FetchRecent(context.Background(), "1", 10)
	require.NoError(t, err)
	require.Len(t, numeric, 1)
	assert.Equal(t, "numeric owner", numeric[0].Content)

	none, err := src.FetchRecent(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorderRoundTrip(t *testing.T) {
	for _, name := range []string{"events.jsonl", "events.jsonl.gz", "events.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			rec := NewRecorder(path)
			for i := 0; i < 5; i++ {
				require.NoError(t, rec.Record("u1", types.LogEntry{
					Kind:      "step",
					Timestamp: fmt.Sprintf("2024-03-01T10:0%d:00", i),
					Content:   fmt.Sprintf("step %d", i),
				}))
			}
			require.NoError(t, rec.Record("u2", types.LogEntry{Kind: "step", Content: "other"}))

			got, err := NewFileSource(path).FetchRecent(context.Background(), "u1", 3)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "step 2", got[0].Content)
			assert.Equal(t, "step 4", got[2].Content)

			other, err := NewFileSource(path).FetchRecent(context.Background(), "u2", 3)
			require.NoError(t, err)
			require.Len(t, other, 1)
			assert.NotEmpty(t, other[0].Timestamp)
		})
	}
}

func TestFetchRecent_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"user_id":"u1","type":"x","timestamp":"t","content":"c"}`+"\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileSource(path).FetchRecent(ctx, "u1", 10)
	assert.ErrorIs(t, err, context.Canceled)
}
