// Package tools provides the tool definitions the analysis agent can call.
//
// Tools are registered in a Registry; the agent strategy exposes the
// registry's Definitions to the LLM and dispatches requested calls through
// Execute.
package tools

import (
	"context"
)

// ToolCategory groups tools by the data they read.
type ToolCategory string

const (
	// CategoryManual covers experiment manual search.
	CategoryManual ToolCategory = "/manual"

	// CategoryLogs covers structured and chat log access.
	CategoryLogs ToolCategory = "/logs"

	// CategoryGeneral is for tools usable anywhere.
	CategoryGeneral ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines one callable tool.
type Tool struct {
	// Name is the identifier the LLM uses to call the tool.
	Name string

	// Description is shown to the LLM.
	Description string

	Category ToolCategory

	Execute ExecuteFunc

	Schema ToolSchema

	// Priority orders tools within a category (default 50).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// InputSchema renders the schema as a JSON-schema object.
func (t *Tool) InputSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	ToolName   string
	Result     string
	Error      error
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}

// StringArg returns args[name] as a string. JSON numbers are formatted
// without a fractional part when integral.
func StringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		if x == float64(int64(x)) {
			return formatInt(int64(x)), nil
		}
	case int:
		return formatInt(int64(x)), nil
	case int64:
		return formatInt(x), nil
	}
	return "", wrapArgType(name, v)
}
