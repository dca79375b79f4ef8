// Package types provides shared type definitions used across labreport packages.
// This package exists to break import cycles between aggregate, analysis, store and tools.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"errors"
	"time"
)

// ErrSubjectNotFound is returned by a Resolver when the subject id is unknown.
var ErrSubjectNotFound = errors.New("subject not found")

// =============================================================================
// SUBJECT AND LOG TYPES
// =============================================================================

// Subject is the experiment being reported on.
type Subject struct {
	ID          string
	Name        string
	OwnerID     string // empty when the experiment has no owner
	Description string
	CreatedAt   time.Time
}

// LogEntry is one structured event produced by the experiment recorder.
// Timestamp is kept as the recorder wrote it (ISO-8601).
type LogEntry struct {
	Kind      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// ChatMessage is one message of the Q&A conversation tied to a subject.
type ChatMessage struct {
	Sender    Sender
	Timestamp time.Time
	Content   string
}

// ReportStyle selects the tone and caption of a rendered report.
type ReportStyle string

const (
	StyleFormal   ReportStyle = "formal"
	StylePersonal ReportStyle = "personal"
)

// ParseReportStyle accepts the canonical names plus the legacy "business" alias.
func ParseReportStyle(s string) (ReportStyle, error) {
	switch s {
	case "formal", "business", "":
		return StyleFormal, nil
	case "personal":
		return StylePersonal, nil
	}
	return "", errors.New("unknown report style: " + s)
}

// ReportRecord is the persisted metadata of an exported report artifact.
type ReportRecord struct {
	ID         string
	UserID     string
	ManualID   string
	FilePath   string
	ReportType ReportStyle
	Status     string // created, deleted
	CreatedAt  time.Time
}
