package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// Report status values.
const (
	ReportStatusCreated = "created"
	ReportStatusDeleted = "deleted"
)

// SaveReport persists report metadata after a successful export.
// ID, Status and CreatedAt are filled when empty.
func (s *LocalStore) SaveReport(ctx context.Context, rec *types.ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = ReportStatusCreated
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, manual_id, report_type, file_path, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ManualID, string(rec.ReportType), rec.FilePath, rec.Status, formatTime(rec.CreatedAt),
	)
	if err != nil {
		logging.StoreError("Failed to save report %s: %v", rec.ID, err)
		return fmt.Errorf("save report: %w", err)
	}
	logging.Store("Report saved: id=%s user=%s path=%s", rec.ID, rec.UserID, rec.FilePath)
	return nil
}

// ListReports returns a user's non-deleted reports, newest first.
func (s *LocalStore) ListReports(ctx context.Context, userID string) ([]types.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, manual_id, report_type, file_path, status, created_at
		 FROM reports WHERE user_id = ? AND status != ? ORDER BY created_at DESC`,
		userID, ReportStatusDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []types.ReportRecord
	for rows.Next() {
		var rec types.ReportRecord
		var reportType, createdAt string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ManualID, &reportType, &rec.FilePath, &rec.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rec.ReportType = types.ReportStyle(reportType)
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkReportDeleted soft-deletes a report owned by userID.
// It reports whether a row was changed.
func (s *LocalStore) MarkReportDeleted(ctx context.Context, userID, reportID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ? WHERE id = ? AND user_id = ? AND status != ?`,
		ReportStatusDeleted, reportID, userID, ReportStatusDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("delete report: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("Report marked deleted: id=%s", reportID)
	}
	return n > 0, nil
}
