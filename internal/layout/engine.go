// Package layout renders analysis text into paginated letter-size documents.
package layout

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// ErrFinalize is returned when the rendered artifact cannot be written.
var ErrFinalize = errors.New("finalize report artifact")

// Page geometry in points, origin bottom-left.
const (
	PageWidth  = 612.0
	PageHeight = 792.0

	TopMargin    = 80.0
	BottomMargin = 80.0
	LeftMargin   = 50.0
	BulletIndent = 60.0
	RightMargin  = 50.0

	LineHeight         = 18.0
	FooterY            = 30.0
	FailureSectionRoom = 150.0

	usableWidth = PageWidth - LeftMargin - RightMargin

	captionSize = 16.0
	metaSize    = 10.0
	footerSize  = 9.0
	sectionGap  = 24.0
)

// StatusConcluded marks an experiment whose outcome is final.
const StatusConcluded = "concluded"

// Meta describes the report being rendered.
type Meta struct {
	Title        string
	Author       string
	Organization string
	// Status is free text; StatusConcluded enables the outcome suffix and
	// the failure analysis section.
	Status     string
	Succeeded  bool
	FailReason string
	Style      types.ReportStyle
}

func (m Meta) concluded() bool {
	return strings.EqualFold(strings.TrimSpace(m.Status), StatusConcluded)
}

type lineStyle struct {
	font  Font
	x     float64
	width float64
}

var styles = map[Style]lineStyle{
	Heading: {font: Font{Bold: true, Size: 14}, x: LeftMargin, width: usableWidth},
	Bullet:  {font: Font{Size: 12}, x: BulletIndent, width: PageWidth - 110},
	Body:    {font: Font{Size: 11}, x: LeftMargin, width: usableWidth},
}

// Config configures an Engine.
type Config struct {
	ProductName string
	OutputDir   string
	Fonts       Fonts
}

// Engine renders reports. It keeps no per-render state; concurrent Render
// calls each own their canvas.
type Engine struct {
	cfg       Config
	newCanvas CanvasFactory
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCanvasFactory replaces the PDF canvas.
func WithCanvasFactory(f CanvasFactory) Option {
	return func(e *Engine) { e.newCanvas = f }
}

// WithClock overrides the time used for the date line and file names.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine writing PDFs under cfg.OutputDir.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	e := &Engine{cfg: cfg, newCanvas: PDFFactory(cfg.Fonts), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render lays out body under a metadata header and returns the artifact
// handle. Only canvas creation and finalization can fail.
func (e *Engine) Render(body string, meta Meta) (string, error) {
	timer := logging.StartTimer(logging.CategoryLayout, "Render")
	defer timer.Stop()

	if meta.Style == "" {
		meta.Style = types.StyleFormal
	}
	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	now := e.now()
	path := OutputPath(e.cfg.OutputDir, meta.Title, meta.Style, now)
	c, err := e.newCanvas(path)
	if err != nil {
		return "", fmt.Errorf("open canvas: %w", err)
	}
	if pc, ok := c.(*PDFCanvas); ok {
		pc.SetTitle(meta.Title, meta.Author)
	}

	p := &pager{c: c, product: e.cfg.ProductName}
	p.newPage()
	p.header(meta, now)
	p.body(body)
	if meta.concluded() && !meta.Succeeded && strings.TrimSpace(meta.FailReason) != "" {
		p.failure(meta.FailReason)
	}
	p.closing(meta.Title)

	handle, err := c.Save()
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditReportRender,
		Target:    path,
		Success:   err == nil,
		Fields:    map[string]interface{}{"pages": p.page, "style": string(meta.Style)},
	})
	if err != nil {
		logging.LayoutError("Render of %q failed: %v", meta.Title, err)
		return "", err
	}
	logging.Layout("Rendered %q: %d pages -> %s", meta.Title, p.page, handle)
	return handle, nil
}

// pager is the cursor of one Render call.
type pager struct {
	c       Canvas
	product string
	page    int
	y       float64
	font    Font
}

func (p *pager) setFont(f Font) {
	p.font = f
	p.c.SetFont(f)
}

// newPage opens a page, stamps its footer and resets the cursor. The current
// font is re-applied.
func (p *pager) newPage() {
	p.c.AddPage()
	p.page++
	logging.LayoutDebug("Started page %d", p.page)

	p.c.SetFont(Font{Size: footerSize})
	p.c.SetTextGray(0.5)
	p.c.DrawCentredString(PageWidth/2, FooterY, fmt.Sprintf("%s — Page %d", p.product, p.page))
	p.c.SetTextGray(0)
	if p.font.Size > 0 {
		p.c.SetFont(p.font)
	}
	p.y = PageHeight - TopMargin
}

// ensure breaks the page when the cursor is below threshold.
func (p *pager) ensure(threshold float64) {
	if p.y < threshold {
		p.newPage()
	}
}

func (p *pager) header(meta Meta, now time.Time) {
	caption := "[Official Experiment Report]"
	if meta.Style == types.StylePersonal {
		caption = "[Personal Experiment Record]"
	}
	p.setFont(Font{Size: captionSize})
	p.c.DrawString(LeftMargin, p.y, caption)
	p.y -= 30

	status := "Status: " + meta.Status
	if meta.concluded() {
		if meta.Succeeded {
			status += " (success)"
		} else {
			status += " (failure)"
		}
	}
	p.setFont(Font{Size: metaSize})
	for _, line := range []string{
		"Title: " + meta.Title,
		"Organization: " + meta.Organization,
		"Author: " + meta.Author,
		"Date: " + now.Format("2006.01.02"),
		status,
	} {
		p.segments(wrap(p.c, line, usableWidth), LeftMargin)
	}
	p.y -= 10
	p.c.Line(LeftMargin, p.y, PageWidth-RightMargin, p.y)
	p.y -= sectionGap
}

func (p *pager) body(body string) {
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if isSeparator(line) {
			continue
		}
		if line == "" {
			p.ensure(BottomMargin)
			p.y -= LineHeight
			continue
		}

		style := Classify(line)
		ls := styles[style]
		p.setFont(ls.font)
		p.segments(wrap(p.c, line, ls.width), ls.x)
		if style == Heading {
			p.y -= LineHeight
		}
	}
}

// segments draws wrapped lines at x, breaking the page before any segment
// that would start below the bottom margin.
func (p *pager) segments(lines []string, x float64) {
	for _, s := range lines {
		p.ensure(BottomMargin)
		p.c.DrawString(x, p.y, s)
		p.y -= LineHeight
	}
}

func (p *pager) failure(reason string) {
	p.ensure(FailureSectionRoom)
	p.y -= sectionGap
	p.c.Line(LeftMargin, p.y, PageWidth-RightMargin, p.y)
	p.y -= sectionGap

	p.setFont(styles[Heading].font)
	p.c.DrawString(LeftMargin, p.y, "Failure analysis")
	p.y -= sectionGap

	ls := styles[Body]
	p.setFont(ls.font)
	for _, para := range strings.Split(reason, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			p.segments(wrap(p.c, para, ls.width), ls.x)
		}
	}
}

func (p *pager) closing(title string) {
	ls := styles[Body]
	p.setFont(ls.font)
	p.segments(wrap(p.c, fmt.Sprintf("This concludes the experiment report on '%s'.", title), ls.width), ls.x)
}

// wrap splits text into lines no wider than width in the canvas's current
// font. Words wider than a line are split by rune, so nothing is dropped.
func wrap(c Canvas, text string, width float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	cur := ""
	for _, w := range words {
		candidate := w
		if cur != "" {
			candidate = cur + " " + w
		}
		if c.StringWidth(candidate) <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur = ""
		}
		if c.StringWidth(w) <= width {
			cur = w
			continue
		}
		pieces := splitWord(c, w, width)
		lines = append(lines, pieces[:len(pieces)-1]...)
		cur = pieces[len(pieces)-1]
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func splitWord(c Canvas, w string, width float64) []string {
	var pieces []string
	var cur []rune
	for _, r := range w {
		next := append(cur, r)
		if len(cur) > 0 && c.StringWidth(string(next)) > width {
			pieces = append(pieces, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	return append(pieces, string(cur))
}
