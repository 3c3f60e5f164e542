package calls

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// phoneSep is a no-break space so numbers never wrap.
const phoneSep = "\u00a0"

var templates = template.Must(template.New("calls").Funcs(template.FuncMap{
	"phone": func(n string) string { return PrettyPhone(n, phoneSep) },
	"epoch": func(t time.Time) string {
		return strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', -1, 64)
	},
	"seconds": func(d time.Duration) int { return int(d.Seconds()) },
}).ParseFS(templateFS, "templates/*.html"))

// PageData fills the live view page shell.
type PageData struct {
	Lang  string
	Token string
	Calls []*Session
}

// RenderFragment renders the content region's HTML for sessions.
func RenderFragment(sessions []*Session) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "call_sessions", sessions); err != nil {
		return "", fmt.Errorf("render call sessions: %w", err)
	}
	return buf.String(), nil
}

// RenderPage writes the full live view page.
func RenderPage(w io.Writer, data PageData) error {
	if err := templates.ExecuteTemplate(w, "live", data); err != nil {
		return fmt.Errorf("render live page: %w", err)
	}
	return nil
}
