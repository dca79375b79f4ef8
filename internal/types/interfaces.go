package types

import (
	"context"
)

// Resolver looks up a subject by id. A miss returns ErrSubjectNotFound.
type Resolver interface {
	Resolve(ctx context.Context, subjectID string) (*Subject, error)
}

// StructuredLogSource returns the most recent structured entries for an owner,
// oldest first, at most limit of them.
type StructuredLogSource interface {
	FetchRecent(ctx context.Context, ownerID string, limit int) ([]LogEntry, error)
}

// ChatLogSource returns every chat message for a subject in creation order.
type ChatLogSource interface {
	FetchAll(ctx context.Context, subjectID string) ([]ChatMessage, error)
}

// ManualSearcher finds manual summary passages relevant to a query, best
// match first.
type ManualSearcher interface {
	SearchManualText(ctx context.Context, manualID, query string, k int) ([]string, error)
}

// ChatSummarizer renders a subject's chat log as text, at most limit messages.
type ChatSummarizer interface {
	ChatSummary(ctx context.Context, subjectID string, limit int) (string, error)
}

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a conversation with tool definitions and returns
	// the response with any tool calls the model requested.
	CompleteWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (*LLMToolResponse, error)
}

// Message is one turn of a tool-calling conversation.
type Message struct {
	Role       string     `json:"role"` // user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`  // assistant turns that requested tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool turns answering a call
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // may be empty if only tool calls
	ToolCalls  []ToolCall    `json:"tool_calls"`
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`
}
