package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one kind of audit record.
type AuditEventType string

const (
	AuditTierAttempt    AuditEventType = "tier_attempt"
	AuditTierFailure    AuditEventType = "tier_failure"
	AuditAnalysisResult AuditEventType = "analysis_result"
	AuditReportRender   AuditEventType = "report_render"
	AuditReportSaved    AuditEventType = "report_saved"
	AuditToolInvoke     AuditEventType = "tool_invoke"
)

// AuditEvent is one line of .labreport/logs/audit.jsonl.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	RequestID  string                 `json:"req,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

type auditWriter struct {
	mu   sync.Mutex
	file *os.File
}

var (
	auditLogger *auditWriter
	auditOnce   sync.Mutex
)

func getAudit() *auditWriter {
	auditOnce.Lock()
	defer auditOnce.Unlock()

	if auditLogger != nil {
		return auditLogger
	}
	if !IsDebugMode() || logsDir == "" {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logsDir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open audit log: %v\n", err)
		return nil
	}
	auditLogger = &auditWriter{file: f}
	return auditLogger
}

// Audit appends an event to the audit trail. No-op outside debug mode.
func Audit(ev AuditEvent) {
	w := getAudit()
	if w == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.file.Write(append(data, '\n'))
}

// CloseAudit closes the audit file if it was opened.
func CloseAudit() {
	auditOnce.Lock()
	defer auditOnce.Unlock()
	if auditLogger != nil {
		auditLogger.file.Close()
		auditLogger = nil
	}
}
