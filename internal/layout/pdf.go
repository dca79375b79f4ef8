package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
)

const pdfFamily = "body"

// Fonts optionally points at TrueType files used instead of core Helvetica.
// Core fonts only cover cp1252; non-Latin reports need a UTF-8 font.
type Fonts struct {
	Regular string
	Bold    string
}

// PDFCanvas draws onto a letter-size fpdf document. Save writes to a
// temporary file beside the target and renames it into place.
type PDFCanvas struct {
	pdf    *fpdf.Fpdf
	path   string
	family string
	tr     func(string) string
}

// NewPDFCanvas prepares a document that Save will write to path.
func NewPDFCanvas(path string, fonts Fonts) (*PDFCanvas, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("labreport", true)

	c := &PDFCanvas{pdf: pdf, path: path, family: "Helvetica"}
	if fonts.Regular != "" {
		bold := fonts.Bold
		if bold == "" {
			bold = fonts.Regular
		}
		pdf.AddUTF8Font(pdfFamily, "", fonts.Regular)
		pdf.AddUTF8Font(pdfFamily, "B", bold)
		c.family = pdfFamily
		c.tr = func(s string) string { return s }
	} else {
		c.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	return c, nil
}

// PDFFactory returns a CanvasFactory producing PDFCanvases with fonts.
func PDFFactory(fonts Fonts) CanvasFactory {
	return func(path string) (Canvas, error) {
		return NewPDFCanvas(path, fonts)
	}
}

// SetTitle records the document title in the PDF metadata.
func (c *PDFCanvas) SetTitle(title, author string) {
	c.pdf.SetTitle(title, true)
	c.pdf.SetAuthor(author, true)
}

func (c *PDFCanvas) AddPage() { c.pdf.AddPage() }

func (c *PDFCanvas) SetFont(f Font) {
	style := ""
	if f.Bold {
		style = "B"
	}
	c.pdf.SetFont(c.family, style, f.Size)
}

func (c *PDFCanvas) SetTextGray(level float64) {
	v := int(level * 255)
	c.pdf.SetTextColor(v, v, v)
}

func (c *PDFCanvas) StringWidth(s string) float64 {
	return c.pdf.GetStringWidth(c.tr(s))
}

// fpdf has a top-left origin.
func (c *PDFCanvas) DrawString(x, y float64, s string) {
	c.pdf.Text(x, PageHeight-y, c.tr(s))
}

func (c *PDFCanvas) DrawCentredString(x, y float64, s string) {
	c.DrawString(x-c.StringWidth(s)/2, y, s)
}

func (c *PDFCanvas) Line(x1, y1, x2, y2 float64) {
	c.pdf.Line(x1, PageHeight-y1, x2, PageHeight-y2)
}

// Save implements Canvas. No file is left at the target or beside it when
// writing fails.
func (c *PDFCanvas) Save() (string, error) {
	if err := c.pdf.Error(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFinalize, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".report-*.pdf.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrFinalize, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if err := c.pdf.Output(tmp); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("%w: write pdf: %v", ErrFinalize, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: close temp file: %v", ErrFinalize, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	return c.path, nil
}
