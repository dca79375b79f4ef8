// Package report ties analysis, rendering and report bookkeeping together.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"labreport/internal/analysis"
	"labreport/internal/layout"
	"labreport/internal/logging"
	"labreport/internal/types"
)

// ErrReportNotFound is returned when deleting a report the user does not own.
var ErrReportNotFound = errors.New("report not found")

// Analyzer produces a classified analysis for a subject.
type Analyzer interface {
	Analyze(ctx context.Context, subjectID string) *analysis.Result
}

// Renderer lays out a report body into an artifact.
type Renderer interface {
	Render(body string, meta layout.Meta) (string, error)
}

// Store persists report metadata.
type Store interface {
	SaveReport(ctx context.Context, rec *types.ReportRecord) error
	ListReports(ctx context.Context, userID string) ([]types.ReportRecord, error)
	MarkReportDeleted(ctx context.Context, userID, reportID string) (bool, error)
}

// Pipeline is the entry point for report requests.
type Pipeline struct {
	analyzer Analyzer
	renderer Renderer
	store    Store
	drafts   *Drafter
}

// NewPipeline wires a Pipeline. drafts may be nil when drafting is not
// configured.
func NewPipeline(analyzer Analyzer, renderer Renderer, store Store, drafts *Drafter) *Pipeline {
	return &Pipeline{analyzer: analyzer, renderer: renderer, store: store, drafts: drafts}
}

// Analyze runs the tiered analysis for subjectID.
func (p *Pipeline) Analyze(ctx context.Context, subjectID string) *analysis.Result {
	res := p.analyzer.Analyze(ctx, subjectID)
	logging.Report("Analyze subject=%s method=%s status=%d", subjectID, res.Method, StatusFor(res))
	return res
}

// StatusFor maps a result to the HTTP status a transport layer should use.
func StatusFor(res *analysis.Result) int {
	switch res.Method {
	case analysis.NotFound:
		return http.StatusNotFound
	case analysis.TerminalFailure:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// ExportRequest asks for a body to be rendered and recorded.
type ExportRequest struct {
	UserID   string
	ManualID string
	Body     string
	Meta     layout.Meta
}

// Export renders the body and records the artifact. The artifact is removed
// again when its metadata cannot be stored.
func (p *Pipeline) Export(ctx context.Context, req ExportRequest) (*types.ReportRecord, error) {
	if strings.TrimSpace(req.Meta.Title) == "" {
		return nil, errors.New("report title is required")
	}
	if req.Meta.Style == "" {
		req.Meta.Style = types.StyleFormal
	}

	path, err := p.renderer.Render(req.Body, req.Meta)
	if err != nil {
		logging.ReportError("Render failed for %q: %v", req.Meta.Title, err)
		return nil, fmt.Errorf("render report: %w", err)
	}

	rec := &types.ReportRecord{
		UserID:     req.UserID,
		ManualID:   req.ManualID,
		FilePath:   path,
		ReportType: req.Meta.Style,
	}
	if err := p.store.SaveReport(ctx, rec); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.ReportError("Could not remove orphaned artifact %s: %v", path, rmErr)
		}
		return nil, fmt.Errorf("save report metadata: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditReportSaved,
		Target:    rec.ID,
		Success:   true,
		Fields:    map[string]interface{}{"path": path, "user": req.UserID},
	})
	logging.Report("Exported report %s for user=%s -> %s", rec.ID, req.UserID, path)
	return rec, nil
}

// AnalyzeAndExport analyzes a subject and renders the result. Results that
// carry no analysis are returned without rendering.
func (p *Pipeline) AnalyzeAndExport(ctx context.Context, subjectID string, req ExportRequest) (*analysis.Result, *types.ReportRecord, error) {
	res := p.Analyze(ctx, subjectID)
	if !res.Method.Succeeded() {
		return res, nil, nil
	}
	if req.Meta.Title == "" && res.Metadata.SubjectName != nil {
		req.Meta.Title = *res.Metadata.SubjectName
	}
	if req.UserID == "" && res.Metadata.OwnerID != nil {
		req.UserID = *res.Metadata.OwnerID
	}
	req.Body = res.Text
	rec, err := p.Export(ctx, req)
	return res, rec, err
}

// Reports lists a user's live reports, newest first.
func (p *Pipeline) Reports(ctx context.Context, userID string) ([]types.ReportRecord, error) {
	return p.store.ListReports(ctx, userID)
}

// DeleteReport soft-deletes one of the user's reports.
func (p *Pipeline) DeleteReport(ctx context.Context, userID, reportID string) error {
	ok, err := p.store.MarkReportDeleted(ctx, userID, reportID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	return nil
}

// Draft writes a report draft from the manual and chat summaries.
func (p *Pipeline) Draft(ctx context.Context, req DraftRequest) (string, error) {
	if p.drafts == nil {
		return "", errors.New("drafting is not configured")
	}
	return p.drafts.Draft(ctx, req)
}
