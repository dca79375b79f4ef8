package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreport/internal/tools"
	"labreport/internal/types"
)

// scriptedLLM returns its responses in order, one per CompleteWithTools call.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*types.LLMToolResponse
	err       error
	calls     [][]types.Message
	toolsSent []int
	direct    string
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptedLLM) CompleteWithSystem(context.Context, string, string) (string, error) {
	return s.direct, s.err
}

func (s *scriptedLLM) CompleteWithTools(_ context.Context, _ string, msgs []types.Message, defs []types.ToolDefinition) (*types.LLMToolResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]types.Message(nil), msgs...))
	s.toolsSent = append(s.toolsSent, len(defs))
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &types.LLMToolResponse{Text: "", StopReason: "end_turn"}, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "experiment_data_lookup",
		Description: "looks up data",
		Category:    tools.CategoryLogs,
		Schema:      tools.ToolSchema{Required: []string{"experiment_id"}},
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			id, err := tools.StringArg(args, "experiment_id")
			if err != nil {
				return "", err
			}
			return "data for " + id, nil
		},
	}))
	return reg
}

func toolCall(id string, input map[string]any) *types.LLMToolResponse {
	return &types.LLMToolResponse{
		ToolCalls:  []types.ToolCall{{ID: id, Name: "experiment_data_lookup", Input: input}},
		StopReason: "tool_use",
	}
}

func newAgent(t *testing.T, llm types.LLMClient, budget int) Strategy {
	t.Helper()
	f := &LLMStrategyFactory{Client: llm, Tools: echoRegistry(t), MaxIterations: budget}
	s, err := f.NewPrimary(&types.Subject{ID: "exp-1"})
	require.NoError(t, err)
	return s
}

func TestAgentStrategy_ToolLoop(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.LLMToolResponse{
		toolCall("c1", map[string]any{"experiment_id": "exp-1"}),
		{Text: "# Final report", StopReason: "end_turn"},
	}}

	out, err := newAgent(t, llm, 3).Invoke(context.Background(), Prompt{System: "sys", User: "analyze"})
	require.NoError(t, err)
	assert.Equal(t, "# Final report", out)

	require.Len(t, llm.calls, 2)
	second := llm.calls[1]
	require.Len(t, second, 3)
	assert.Equal(t, "assistant", second[1].Role)
	assert.Equal(t, "tool", second[2].Role)
	assert.Equal(t, "c1", second[2].ToolCallID)
	assert.Equal(t, "data for exp-1", second[2].Content)
}

func TestAgentStrategy_ToolErrorsFedBack(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.LLMToolResponse{
		toolCall("c1", map[string]any{}),
		{Text: "done"},
	}}

	out, err := newAgent(t, llm, 3).Invoke(context.Background(), Prompt{User: "go"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Contains(t, llm.calls[1][2].Content, "error:")
}

func TestAgentStrategy_BudgetExhausted(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.LLMToolResponse{
		toolCall("c1", map[string]any{"experiment_id": "a"}),
		toolCall("c2", map[string]any{"experiment_id": "b"}),
		{Text: "summary after budget"},
	}}

	out, err := newAgent(t, llm, 2).Invoke(context.Background(), Prompt{User: "go"})
	require.NoError(t, err)
	assert.Equal(t, "summary after budget", out)
	require.Len(t, llm.toolsSent, 3)
	assert.Equal(t, 0, llm.toolsSent[2], "final call offers no tools")
	last := llm.calls[2]
	assert.Equal(t, finalAnswerInstruction, last[len(last)-1].Content)
}

func TestAgentStrategy_ToolsAfterBudgetIsParsingError(t *testing.T) {
	llm := &scriptedLLM{responses: []*types.LLMToolResponse{
		toolCall("c1", map[string]any{"experiment_id": "a"}),
		toolCall("c2", map[string]any{"experiment_id": "b"}),
	}}

	_, err := newAgent(t, llm, 1).Invoke(context.Background(), Prompt{User: "go"})
	assert.ErrorIs(t, err, ErrOutputParsing)
	assert.True(t, isParsingFailure(err))
}

func TestAgentStrategy_ClientError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("API error 503")}

	_, err := newAgent(t, llm, 3).Invoke(context.Background(), Prompt{User: "go"})
	assert.ErrorIs(t, err, ErrStrategyInvocation)
	assert.False(t, isParsingFailure(err))
}

func TestParseAgentOutput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain markdown", "  # Report\n\nbody  ", "# Report\n\nbody", false},
		{"final answer marker", "Thought: done\nFinal Answer: # Report", "# Report", false},
		{"empty", "   ", "", true},
		{"empty final answer", "Final Answer:   ", "", true},
		{"unresolved action", "Thought: need data\nAction: experiment_data_lookup\nAction Input: x", "", true},
		{"tool envelope", `{"name":"experiment_data_lookup","arguments":{"experiment_id":"1"}}`, "", true},
		{"tool_calls envelope", `{"tool_calls":[]}`, "", true},
		{"ordinary json is an answer", `{"summary":"fine"}`, `{"summary":"fine"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAgentOutput(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrOutputParsing)
				assert.True(t, isParsingFailure(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMStrategyFactory_NewPrimary(t *testing.T) {
	llm := &scriptedLLM{}
	subj := &types.Subject{ID: "exp-1"}

	tests := []struct {
		name    string
		factory *LLMStrategyFactory
	}{
		{"no client", &LLMStrategyFactory{Tools: echoRegistry(t), MaxIterations: 3}},
		{"client error", &LLMStrategyFactory{ClientErr: errors.New("missing api key"), Tools: echoRegistry(t), MaxIterations: 3}},
		{"no tools", &LLMStrategyFactory{Client: llm, Tools: tools.NewRegistry(), MaxIterations: 3}},
		{"zero budget", &LLMStrategyFactory{Client: llm, Tools: echoRegistry(t)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.factory.NewPrimary(subj)
			assert.ErrorIs(t, err, ErrStrategyConstruction)
		})
	}
}

func TestDirectStrategy(t *testing.T) {
	out, err := NewDirectStrategy(&scriptedLLM{direct: "report"}).Invoke(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "report", out)

	_, err = NewDirectStrategy(&scriptedLLM{direct: "  "}).Invoke(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrStrategyInvocation)

	_, err = NewDirectStrategy(&scriptedLLM{err: errors.New("down")}).Invoke(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrStrategyInvocation)

	f := &LLMStrategyFactory{ClientErr: errors.New("missing api key")}
	_, err = f.Direct().Invoke(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrStrategyInvocation)
	assert.Contains(t, err.Error(), "missing api key")
}
