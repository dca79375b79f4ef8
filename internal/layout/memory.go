package layout

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Run is one string drawn on a MemoryCanvas.
type Run struct {
	X, Y     float64
	Text     string
	Font     Font
	Centered bool
}

// Rule is one line drawn on a MemoryCanvas.
type Rule struct {
	X1, Y1, X2, Y2 float64
}

// Page holds everything drawn on one page.
type Page struct {
	Runs  []Run
	Rules []Rule
}

// MemoryCanvas records drawing operations instead of producing a file. Widths
// use a fixed advance of half the font size per rune.
type MemoryCanvas struct {
	path  string
	font  Font
	pages []Page

	// SaveErr, when set, makes Save fail.
	SaveErr error
	saved   bool
}

// NewMemoryCanvas returns a canvas whose Save reports path.
func NewMemoryCanvas(path string) *MemoryCanvas {
	return &MemoryCanvas{path: path}
}

// MemoryFactory returns a CanvasFactory that builds MemoryCanvases and hands
// each one to keep.
func MemoryFactory(keep func(*MemoryCanvas)) CanvasFactory {
	return func(path string) (Canvas, error) {
		c := NewMemoryCanvas(path)
		if keep != nil {
			keep(c)
		}
		return c, nil
	}
}

func (m *MemoryCanvas) AddPage() { m.pages = append(m.pages, Page{}) }
func (m *MemoryCanvas) SetFont(f Font) { m.font = f }
func (m *MemoryCanvas) SetTextGray(float64) {}

func (m *MemoryCanvas) StringWidth(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * m.font.Size * 0.5
}

func (m *MemoryCanvas) DrawString(x, y float64, s string) {
	m.current().Runs = append(m.current().Runs, Run{X: x, Y: y, Text: s, Font: m.font})
}

func (m *MemoryCanvas) DrawCentredString(x, y float64, s string) {
	m.current().Runs = append(m.current().Runs, Run{X: x, Y: y, Text: s, Font: m.font, Centered: true})
}

func (m *MemoryCanvas) Line(x1, y1, x2, y2 float64) {
	m.current().Rules = append(m.current().Rules, Rule{x1, y1, x2, y2})
}

// Save implements Canvas.
func (m *MemoryCanvas) Save() (string, error) {
	if m.SaveErr != nil {
		return "", fmt.Errorf("%w: %v", ErrFinalize, m.SaveErr)
	}
	m.saved = true
	return m.path, nil
}

// Saved reports whether Save succeeded.
func (m *MemoryCanvas) Saved() bool { return m.saved }

// Pages returns the recorded pages.
func (m *MemoryCanvas) Pages() []Page { return m.pages }

// Dump renders the pages as plain text, top of page first, for previews.
func (m *MemoryCanvas) Dump() string {
	var b strings.Builder
	for i, p := range m.pages {
		fmt.Fprintf(&b, "----- page %d -----\n", i+1)
		runs := append([]Run(nil), p.Runs...)
		sort.SliceStable(runs, func(a, c int) bool { return runs[a].Y > runs[c].Y })
		for _, r := range runs {
			indent := ""
			if r.X > LeftMargin {
				indent = "  "
			}
			b.WriteString(indent)
			b.WriteString(r.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m *MemoryCanvas) current() *Page {
	if len(m.pages) == 0 {
		m.AddPage()
	}
	return &m.pages[len(m.pages)-1]
}
