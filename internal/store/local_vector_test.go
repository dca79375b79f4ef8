package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreport/internal/types"
)

var (
	_ types.ManualSearcher = (*LocalStore)(nil)
	_ types.ChatSummarizer = (*LocalStore)(nil)
	_ types.Resolver       = (*LocalStore)(nil)
	_ types.ChatLogSource  = (*LocalStore)(nil)
)

// fakeEngine embeds text as counts of a few marker words.
type fakeEngine struct {
	fail bool
}

var fakeVocab = []string{"titration", "buffer", "safety"}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("engine offline")
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(fakeVocab))
	for i, w := range fakeVocab {
		vec[i] = float32(strings.Count(lower, w))
	}
	return vec, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return len(fakeVocab) }
func (f *fakeEngine) Name() string    { return "fake" }

func seedManual(t *testing.T, s *LocalStore) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []ManualChunk{
		{ManualID: "m1", Kind: ChunkSummary, Content: "Titration steps: titration with NaOH"},
		{ManualID: "m1", Kind: ChunkSummary, Content: "Buffer preparation overview"},
		{ManualID: "m1", Kind: ChunkSummary, Content: "Safety goggles and safety gloves"},
		{ManualID: "m1", Kind: ChunkSection, Content: "Titration appendix"},
		{ManualID: "m2", Kind: ChunkSummary, Content: "Titration in another manual"},
	} {
		_, err := s.StoreManualChunk(ctx, c)
		require.NoError(t, err)
	}
}

func TestSearchManual_Vector(t *testing.T) {
	s := newTestStore(t)
	s.SetEmbeddingEngine(&fakeEngine{})
	seedManual(t, s)

	got, err := s.SearchManual(context.Background(), "m1", ChunkSummary, "titration", 2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0].Content, "Titration steps")
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	for _, c := range got {
		assert.Equal(t, "m1", c.ManualID)
		assert.Equal(t, ChunkSummary, c.Kind)
	}
	assert.LessOrEqual(t, len(got), 2)
}

func TestSearchManual_KeywordFallback(t *testing.T) {
	s := newTestStore(t)
	seedManual(t, s)

	got, err := s.SearchManual(context.Background(), "m1", ChunkSummary, "safety buffer", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.NotContains(t, c.Content, "Titration")
	}

	// Engine attached later but chunks carry no vectors: still keyword.
	s.SetEmbeddingEngine(&fakeEngine{})
	got, err = s.SearchManual(context.Background(), "m1", ChunkSummary, "buffer", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Content, "Buffer")
}

func TestSearchManual_EngineFailure(t *testing.T) {
	s := newTestStore(t)
	engine := &fakeEngine{}
	s.SetEmbeddingEngine(engine)
	seedManual(t, s)

	engine.fail = true
	got, err := s.SearchManual(context.Background(), "m1", ChunkSummary, "buffer", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Storing while the engine is down keeps the chunk.
	_, err = s.StoreManualChunk(context.Background(), ManualChunk{ManualID: "m3", Content: "no vector"})
	require.NoError(t, err)
}

func TestSearchManual_Empty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.SearchManual(context.Background(), "none", ChunkSummary, "x", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
