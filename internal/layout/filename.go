package layout

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"labreport/internal/types"
)

var unsafeTitle = strings.NewReplacer(":", "_", "/", "_", `\`, "_")

// FileName returns report_<title>_<style>_<YYYY.MM.DD>_<8 hex>.pdf with path
// separators and colons in the title replaced.
func FileName(title string, style types.ReportStyle, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "report_" + unsafeTitle.Replace(title) + "_" + string(style) + "_" + now.Format("2006.01.02") + "_" + suffix + ".pdf"
}

// OutputPath joins dir and a fresh FileName.
func OutputPath(dir, title string, style types.ReportStyle, now time.Time) string {
	return filepath.Join(dir, FileName(title, style, now))
}
