package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreport/internal/aggregate"
	"labreport/internal/llm"
	"labreport/internal/store"
	"labreport/internal/types"
)

var fixedNow = time.Date(2025, 4, 5, 6, 7, 8, 0, time.UTC)

type fakeResolver struct {
	subjects map[string]*types.Subject
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, id string) (*types.Subject, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subjects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrSubjectNotFound, id)
	}
	return s, nil
}

type fakeEvents struct{ entries []types.LogEntry }

func (f *fakeEvents) FetchRecent(context.Context, string, int) ([]types.LogEntry, error) {
	return f.entries, nil
}

type fakeChats struct {
	msgs []types.ChatMessage
	err  error
}

func (f *fakeChats) FetchAll(context.Context, string) ([]types.ChatMessage, error) {
	return f.msgs, f.err
}

type fakeStrategy struct {
	mu      sync.Mutex
	text    string
	err     error
	panics  any
	calls   int
	prompts []Prompt
}

func (f *fakeStrategy) Invoke(_ context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	if f.panics != nil {
		panic(f.panics)
	}
	return f.text, f.err
}

func (f *fakeStrategy) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFactory struct {
	primary      *fakeStrategy
	primaryErr   error
	direct       *fakeStrategy
	constructed  int
	constructMu  sync.Mutex
	panicOnBuild bool
}

func (f *fakeFactory) NewPrimary(*types.Subject) (Strategy, error) {
	f.constructMu.Lock()
	f.constructed++
	f.constructMu.Unlock()
	if f.panicOnBuild {
		panic("factory exploded")
	}
	if f.primaryErr != nil {
		return nil, f.primaryErr
	}
	return f.primary, nil
}

func (f *fakeFactory) Direct() Strategy { return f.direct }

type fakeSink struct {
	records []store.AnalysisRecord
	err     error
}

func (f *fakeSink) SaveAnalysis(_ context.Context, rec store.AnalysisRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

func threeChats() []types.ChatMessage {
	ts := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	return []types.ChatMessage{
		{Sender: types.SenderUser, Timestamp: ts, Content: "how much NaOH?"},
		{Sender: types.SenderAssistant, Timestamp: ts.Add(time.Minute), Content: "0.1 M, 25 mL"},
		{Sender: types.SenderUser, Timestamp: ts.Add(2 * time.Minute), Content: "endpoint reached"},
	}
}

func newTestOrchestrator(factory StrategyFactory, opts ...Option) *Orchestrator {
	resolver := &fakeResolver{subjects: map[string]*types.Subject{
		"exp-42": {ID: "exp-42", Name: "Acid-base titration", OwnerID: "u-1"},
	}}
	agg := aggregate.New(&fakeEvents{}, &fakeChats{msgs: threeChats()}, 100)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewOrchestrator(resolver, agg, factory, opts...)
}

func TestAnalyze_NotFound(t *testing.T) {
	f := &fakeFactory{primary: &fakeStrategy{text: "x"}, direct: &fakeStrategy{text: "y"}}
	res := newTestOrchestrator(f).Analyze(context.Background(), "missing-7")

	require.NotNil(t, res)
	assert.Equal(t, NotFound, res.Method)
	assert.Contains(t, res.Text, "missing-7")
	assert.Nil(t, res.Metadata.SubjectName)
	assert.Nil(t, res.Metadata.OwnerID)
	assert.False(t, res.Metadata.HasStructuredLogs)
	assert.False(t, res.Metadata.HasChatLogs)
	assert.Zero(t, f.constructed)
	assert.Zero(t, f.direct.Calls())
}

func TestAnalyze_PrimarySuccess(t *testing.T) {
	f := &fakeFactory{primary: &fakeStrategy{text: "## Report body"}, direct: &fakeStrategy{text: "unused"}}
	res := newTestOrchestrator(f).Analyze(context.Background(), "exp-42")

	assert.Equal(t, PrimaryAgent, res.Method)
	assert.True(t, strings.HasPrefix(res.Text, "## Report body"))
	assert.Contains(t, res.Text, "- Analysis time: 2025-04-05 06:07:08")
	assert.Contains(t, res.Text, "- Method: ReAct Agent")
	assert.Contains(t, res.Text, "- Experiment ID: exp-42")
	assert.Equal(t, 1, f.primary.Calls())
	assert.Zero(t, f.direct.Calls())

	// The aggregated context reaches the strategy.
	assert.Contains(t, f.primary.prompts[0].User, "endpoint reached")
	assert.Contains(t, f.primary.prompts[0].User, aggregate.NoStructuredLogs)
}

func TestAnalyze_MetadataPopulated(t *testing.T) {
	f := &fakeFactory{primary: &fakeStrategy{text: "ok"}, direct: &fakeStrategy{}}
	res := newTestOrchestrator(f).Analyze(context.Background(), "exp-42")

	name, owner := "Acid-base titration", "u-1"
	want := Metadata{
		SubjectName:         &name,
		OwnerID:             &owner,
		HasStructuredLogs:   false,
		HasChatLogs:         true,
		TotalStructuredLogs: 0,
		TotalChatLogs:       3,
		GeneratedAt:         fixedNow,
	}
	if diff := cmp.Diff(want, res.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_Tiers(t *testing.T) {
	tests := []struct {
		name          string
		factory       func() *fakeFactory
		wantMethod    Method
		wantPrimary   int
		wantDirect    int
		wantInText    []string
		wantNotInText []string
	}{
		{
			name: "construction failure falls back to direct call",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primaryErr: fmt.Errorf("%w: no tools registered", ErrStrategyConstruction),
					direct:     &fakeStrategy{text: "direct body"},
				}
			},
			wantMethod: DirectFallback,
			wantDirect: 1,
			wantInText: []string{"direct body", "LLM Direct Call (Agent Fallback)"},
		},
		{
			name: "construction error mentioning output still uses tier two",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primaryErr: errors.New("output directory missing"),
					direct:     &fakeStrategy{text: "direct body"},
				}
			},
			wantMethod: DirectFallback,
			wantDirect: 1,
		},
		{
			name: "invocation failure falls back to direct call",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{err: errors.New("rate limited")},
					direct:  &fakeStrategy{text: "direct body"},
				}
			},
			wantMethod:  DirectFallback,
			wantPrimary: 1,
			wantDirect:  1,
		},
		{
			name: "parsing failure uses parsing remedy",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{err: errors.New("Could not parse LLM OUTPUT: `Thought:`")},
					direct:  &fakeStrategy{text: "remedy body"},
				}
			},
			wantMethod:  ParsingErrorFallback,
			wantPrimary: 1,
			wantDirect:  1,
			wantInText:  []string{"remedy body", "LLM Direct Call (Agent Parsing Error Fallback)"},
		},
		{
			name: "Parsing keyword matched case-insensitively",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{err: errors.New("PARSING went wrong")},
					direct:  &fakeStrategy{text: "remedy"},
				}
			},
			wantMethod:  ParsingErrorFallback,
			wantPrimary: 1,
			wantDirect:  1,
		},
		{
			name: "direct failure after invocation failure is terminal",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{err: errors.New("agent timeout")},
					direct:  &fakeStrategy{err: errors.New("quota exceeded")},
				}
			},
			wantMethod:    TerminalFailure,
			wantPrimary:   1,
			wantDirect:    1,
			wantInText:    []string{"exp-42", "agent timeout", "quota exceeded", "2025-04-05 06:07:08"},
			wantNotInText: []string{"Generation info"},
		},
		{
			name: "parsing remedy failure is terminal",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{err: fmt.Errorf("%w: unresolved action", ErrOutputParsing)},
					direct:  &fakeStrategy{err: errors.New("connection reset")},
				}
			},
			wantMethod:  TerminalFailure,
			wantPrimary: 1,
			wantDirect:  1,
			wantInText:  []string{"output parsing error", "connection reset"},
		},
		{
			name: "construction and direct failure is terminal",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primaryErr: errors.New("missing api key"),
					direct:     &fakeStrategy{err: errors.New("missing api key")},
				}
			},
			wantMethod: TerminalFailure,
			wantDirect: 1,
		},
		{
			name: "panicking primary is an invocation failure",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{panics: "boom"},
					direct:  &fakeStrategy{text: "recovered"},
				}
			},
			wantMethod:  DirectFallback,
			wantPrimary: 1,
			wantDirect:  1,
		},
		{
			name: "panicking factory is a construction failure",
			factory: func() *fakeFactory {
				return &fakeFactory{panicOnBuild: true, direct: &fakeStrategy{text: "recovered"}}
			},
			wantMethod: DirectFallback,
			wantDirect: 1,
		},
		{
			name: "panicking fallback is terminal",
			factory: func() *fakeFactory {
				return &fakeFactory{
					primary: &fakeStrategy{err: errors.New("bad gateway")},
					direct:  &fakeStrategy{panics: errors.New("nil map")},
				}
			},
			wantMethod:  TerminalFailure,
			wantPrimary: 1,
			wantDirect:  1,
			wantInText:  []string{"bad gateway", "panic: nil map"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.factory()
			res := newTestOrchestrator(f).Analyze(context.Background(), "exp-42")

			require.NotNil(t, res)
			assert.Equal(t, tt.wantMethod, res.Method)
			assert.Equal(t, 1, f.constructed, "primary constructed once")
			if f.primary != nil {
				assert.Equal(t, tt.wantPrimary, f.primary.Calls())
			}
			assert.Equal(t, tt.wantDirect, f.direct.Calls())
			for _, s := range tt.wantInText {
				assert.Contains(t, res.Text, s)
			}
			for _, s := range tt.wantNotInText {
				assert.NotContains(t, res.Text, s)
			}
			assert.NotNil(t, res.Metadata.SubjectName)
			assert.Equal(t, 3, res.Metadata.TotalChatLogs)
		})
	}
}

func TestAnalyze_FallbackPromptsDiffer(t *testing.T) {
	direct := &fakeStrategy{text: "ok"}
	f := &fakeFactory{primary: &fakeStrategy{err: errors.New("parsing")}, direct: direct}
	newTestOrchestrator(f).Analyze(context.Background(), "exp-42")

	direct2 := &fakeStrategy{text: "ok"}
	f2 := &fakeFactory{primary: &fakeStrategy{err: errors.New("timeout")}, direct: direct2}
	newTestOrchestrator(f2).Analyze(context.Background(), "exp-42")

	require.Len(t, direct.prompts, 1)
	require.Len(t, direct2.prompts, 1)
	assert.NotEqual(t, direct.prompts[0].User, direct2.prompts[0].User)
	assert.Contains(t, direct.prompts[0].User, "exp-42")
}

func TestAnalyze_ResolverErrorIsTerminal(t *testing.T) {
	f := &fakeFactory{primary: &fakeStrategy{text: "x"}, direct: &fakeStrategy{text: "y"}}
	o := NewOrchestrator(&fakeResolver{err: errors.New("database is locked")},
		aggregate.New(nil, nil, 0), f, WithClock(func() time.Time { return fixedNow }))

	res := o.Analyze(context.Background(), "exp-42")
	assert.Equal(t, TerminalFailure, res.Method)
	assert.Contains(t, res.Text, "database is locked")
	assert.Contains(t, res.Text, "exp-42")
	assert.Zero(t, f.constructed)
}

func TestAnalyze_AggregationErrorIsTerminal(t *testing.T) {
	resolver := &fakeResolver{subjects: map[string]*types.Subject{"exp-42": {ID: "exp-42", Name: "n"}}}
	agg := aggregate.New(nil, &fakeChats{err: errors.New("no such table: chat_logs")}, 0)
	f := &fakeFactory{primary: &fakeStrategy{text: "x"}, direct: &fakeStrategy{text: "y"}}

	res := NewOrchestrator(resolver, agg, f).Analyze(context.Background(), "exp-42")
	assert.Equal(t, TerminalFailure, res.Method)
	assert.Contains(t, res.Text, "no such table")
	require.NotNil(t, res.Metadata.SubjectName)
	assert.Equal(t, "n", *res.Metadata.SubjectName)
	assert.Nil(t, res.Metadata.OwnerID)
}

func TestAnalyze_Idempotent(t *testing.T) {
	build := func() *fakeFactory {
		return &fakeFactory{primary: &fakeStrategy{err: errors.New("parse output")}, direct: &fakeStrategy{text: "same"}}
	}
	first := newTestOrchestrator(build()).Analyze(context.Background(), "exp-42")
	second := newTestOrchestrator(build()).Analyze(context.Background(), "exp-42")

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated analysis differs (-first +second):\n%s", diff)
	}
}

func TestAnalyze_ConcurrentCalls(t *testing.T) {
	f := &fakeFactory{primary: &fakeStrategy{text: "body"}, direct: &fakeStrategy{}}
	o := newTestOrchestrator(f)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Analyze(context.Background(), "exp-42")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, PrimaryAgent, r.Method)
	}
	assert.Equal(t, len(results), f.primary.Calls())
}

func TestAnalyze_PersistsResolvedResults(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	f := &fakeFactory{primary: &fakeStrategy{text: "body"}, direct: &fakeStrategy{}}
	o := newTestOrchestrator(f, WithResultSink(sink))

	res := o.Analyze(context.Background(), "exp-42")
	assert.Equal(t, PrimaryAgent, res.Method, "sink errors do not change the result")

	o.Analyze(context.Background(), "unknown")

	require.Len(t, sink.records, 1)
	assert.Equal(t, "exp-42", sink.records[0].SubjectID)
	assert.Equal(t, "primary_agent", sink.records[0].Method)
	assert.Equal(t, 3, sink.records[0].ChatLogs)
	assert.Equal(t, fixedNow, sink.records[0].GeneratedAt)
}

func TestAnalyze_Timeout(t *testing.T) {
	o := newTestOrchestrator(&timeoutFactory{}, WithTimeout(20*time.Millisecond))

	res := o.Analyze(context.Background(), "exp-42")
	assert.Equal(t, TerminalFailure, res.Method)
	assert.Contains(t, res.Text, context.DeadlineExceeded.Error())
}

type blockingStrategy struct{}

func (blockingStrategy) Invoke(ctx context.Context, _ Prompt) (string, error) {
	<-ctx.Done()
	return "", fmt.Errorf("%w: %v", ErrStrategyInvocation, ctx.Err())
}

type timeoutFactory struct{}

func (timeoutFactory) NewPrimary(*types.Subject) (Strategy, error) { return blockingStrategy{}, nil }
func (timeoutFactory) Direct() Strategy                           { return blockingStrategy{} }

func TestMethod(t *testing.T) {
	assert.Less(t, int(PrimaryAgent), int(DirectFallback))
	assert.Less(t, int(ParsingErrorFallback), int(TerminalFailure))
	assert.True(t, DirectFallback.Succeeded())
	assert.False(t, NotFound.Succeeded())

	var m Method
	require.NoError(t, m.UnmarshalText([]byte("parsing_error_fallback")))
	assert.Equal(t, ParsingErrorFallback, m)
	assert.Error(t, m.UnmarshalText([]byte("bogus")))
}

func TestAnalyze_UnconfiguredClientQuotesCause(t *testing.T) {
	for _, provider := range []llm.Provider{llm.ProviderOpenAI, llm.ProviderGemini} {
		t.Run(string(provider), func(t *testing.T) {
			client, err := llm.NewClient(context.Background(), llm.Config{Provider: provider})
			require.Error(t, err)

			f := &LLMStrategyFactory{Client: client, ClientErr: err, Tools: echoRegistry(t), MaxIterations: 3}
			res := newTestOrchestrator(f).Analyze(context.Background(), "exp-42")

			assert.Equal(t, TerminalFailure, res.Method)
			assert.Contains(t, res.Text, "**Agent error:** "+ErrStrategyConstruction.Error())
			assert.Contains(t, res.Text, "**Fallback error:** "+ErrStrategyInvocation.Error())
			assert.Equal(t, 2, strings.Count(res.Text, "API key not configured"))
			assert.NotContains(t, res.Text, "panic")
		})
	}
}
