package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/valyala/fastjson"

	"labreport/internal/logging"
	"labreport/internal/tools"
	"labreport/internal/types"
)

const finalAnswerInstruction = "The tool budget is exhausted. Write the final report now using the information gathered so far, without calling any tools."

// AgentStrategy runs a tool-calling loop. Each iteration is one completion;
// tool calls it requests are executed against the registry and fed back.
// When the budget runs out one last completion without tools produces the
// answer.
type AgentStrategy struct {
	client        types.LLMClient
	registry      *tools.Registry
	maxIterations int
	subjectID     string
}

// Invoke implements Strategy.
func (s *AgentStrategy) Invoke(ctx context.Context, p Prompt) (string, error) {
	defs := s.registry.Definitions()
	msgs := []types.Message{{Role: "user", Content: p.User}}

	for i := 1; i <= s.maxIterations; i++ {
		resp, err := s.client.CompleteWithTools(ctx, p.System, msgs, defs)
		if err != nil {
			return "", fmt.Errorf("%w: agent iteration %d: %v", ErrStrategyInvocation, i, err)
		}
		if len(resp.ToolCalls) == 0 {
			return parseAgentOutput(resp.Text)
		}

		logging.AnalysisDebug("Agent subject=%s iteration=%d tool_calls=%d", s.subjectID, i, len(resp.ToolCalls))
		msgs = append(msgs, types.Message{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			msgs = append(msgs, types.Message{
				Role:       "tool",
				Content:    s.runTool(ctx, call),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	msgs = append(msgs, types.Message{Role: "user", Content: finalAnswerInstruction})
	resp, err := s.client.CompleteWithTools(ctx, p.System, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("%w: agent final answer: %v", ErrStrategyInvocation, err)
	}
	if len(resp.ToolCalls) > 0 {
		return "", fmt.Errorf("%w: agent requested tools after %d iterations", ErrOutputParsing, s.maxIterations)
	}
	return parseAgentOutput(resp.Text)
}

// runTool executes one call. Tool failures are reported back to the model
// as text rather than aborting the loop.
func (s *AgentStrategy) runTool(ctx context.Context, call types.ToolCall) string {
	res, err := s.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		logging.AnalysisWarn("Agent tool %s failed: %v", call.Name, err)
		return "error: " + err.Error()
	}
	return res.Result
}

// parseAgentOutput validates the agent's final answer. It rejects empty
// answers, ReAct-style Action lines that were never resolved, and tool-call
// JSON that arrived as plain text.
func parseAgentOutput(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty final answer", ErrOutputParsing)
	}

	if idx := strings.Index(trimmed, "Final Answer:"); idx >= 0 {
		answer := strings.TrimSpace(trimmed[idx+len("Final Answer:"):])
		if answer == "" {
			return "", fmt.Errorf("%w: empty final answer", ErrOutputParsing)
		}
		return answer, nil
	}

	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "Action:") {
			return "", fmt.Errorf("%w: could not parse LLM output: unresolved action %q", ErrOutputParsing, strings.TrimSpace(line))
		}
	}

	if strings.HasPrefix(trimmed, "{") && looksLikeToolEnvelope(trimmed) {
		return "", fmt.Errorf("%w: could not parse LLM output: tool call returned as text", ErrOutputParsing)
	}
	return trimmed, nil
}

func looksLikeToolEnvelope(s string) bool {
	v, err := fastjson.Parse(s)
	if err != nil || v.Type() != fastjson.TypeObject {
		return false
	}
	if v.Exists("tool_calls") || v.Exists("function_call") {
		return true
	}
	return (v.Exists("name") || v.Exists("tool") || v.Exists("action")) &&
		(v.Exists("arguments") || v.Exists("args") || v.Exists("action_input") || v.Exists("input"))
}
