package store

import (
	"context"
	"fmt"
	"time"
)

// AnalysisRecord is one persisted analysis outcome.
type AnalysisRecord struct {
	ID             int64
	SubjectID      string
	Method         string
	Text           string
	StructuredLogs int
	ChatLogs       int
	GeneratedAt    time.Time
}

// SaveAnalysis stores an analysis outcome.
func (s *LocalStore) SaveAnalysis(ctx context.Context, rec AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (subject_id, method, text, structured_logs, chat_logs, generated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SubjectID, rec.Method, rec.Text, rec.StructuredLogs, rec.ChatLogs, formatTime(rec.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the stored outcomes for a subject, oldest first.
func (s *LocalStore) ListAnalyses(ctx context.Context, subjectID string) ([]AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, method, text, structured_logs, chat_logs, generated_at
		 FROM analysis_results WHERE subject_id = ? ORDER BY generated_at ASC, id ASC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		var generatedAt string
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.Method, &rec.Text, &rec.StructuredLogs, &rec.ChatLogs, &generatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		rec.GeneratedAt = parseTime(generatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
