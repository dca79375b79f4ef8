package layout

// Font selects the face and size for subsequent drawing.
type Font struct {
	Bold bool
	Size float64
}

// Canvas is a fixed-size page surface with a bottom-left origin, y growing
// upward. One Canvas belongs to one Render call.
type Canvas interface {
	// AddPage starts a new page. The first call opens page 1.
	AddPage()
	SetFont(f Font)
	// SetTextGray sets the text fill, 0 black to 1 white.
	SetTextGray(level float64)
	// StringWidth measures s in the current font.
	StringWidth(s string) float64
	DrawString(x, y float64, s string)
	DrawCentredString(x, y float64, s string)
	Line(x1, y1, x2, y2 float64)
	// Save finalizes the artifact and returns its handle. Failures wrap
	// ErrFinalize.
	Save() (string, error)
}

// CanvasFactory opens a canvas that will be saved at path.
type CanvasFactory func(path string) (Canvas, error)
