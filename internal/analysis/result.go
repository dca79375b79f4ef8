// Package analysis implements the tiered analysis orchestrator.
//
// Analyze always returns a classified Result. Strategy failures, missing
// subjects and panics inside strategies are converted into data; the caller
// never sees an error.
package analysis

import (
	"fmt"
	"time"
)

// Method tags how a Result was produced. Values are ordered by degradation
// depth.
type Method int

const (
	PrimaryAgent Method = iota
	DirectFallback
	ParsingErrorFallback
	NotFound
	TerminalFailure
)

var methodNames = map[Method]string{
	PrimaryAgent:         "primary_agent",
	DirectFallback:       "direct_fallback",
	ParsingErrorFallback: "parsing_error_fallback",
	NotFound:             "not_found",
	TerminalFailure:      "terminal_failure",
}

// String returns the persisted name of the method.
func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// MarshalText encodes the method by name.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a method name.
func (m *Method) UnmarshalText(b []byte) error {
	for k, v := range methodNames {
		if v == string(b) {
			*m = k
			return nil
		}
	}
	return fmt.Errorf("unknown analysis method %q", b)
}

// Label is the human-readable method name used in generation footers.
func (m Method) Label() string {
	switch m {
	case PrimaryAgent:
		return "ReAct Agent"
	case DirectFallback:
		return "LLM Direct Call (Agent Fallback)"
	case ParsingErrorFallback:
		return "LLM Direct Call (Agent Parsing Error Fallback)"
	case NotFound:
		return "Not Found"
	case TerminalFailure:
		return "Analysis Failed"
	}
	return m.String()
}

// Succeeded reports whether the method carries a generated analysis.
func (m Method) Succeeded() bool {
	return m == PrimaryAgent || m == DirectFallback || m == ParsingErrorFallback
}

// Metadata describes the inputs of an analysis. Name and owner are nil when
// the subject could not be resolved.
type Metadata struct {
	SubjectName         *string   `json:"subject_name"`
	OwnerID             *string   `json:"owner_id"`
	HasStructuredLogs   bool      `json:"has_structured_logs"`
	HasChatLogs         bool      `json:"has_chat_logs"`
	TotalStructuredLogs int       `json:"total_structured_logs"`
	TotalChatLogs       int       `json:"total_chat_logs"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Result is the outcome of one Analyze call.
type Result struct {
	Text     string   `json:"text"`
	Method   Method   `json:"method"`
	Metadata Metadata `json:"metadata"`
}
