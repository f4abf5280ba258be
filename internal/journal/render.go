package journal

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
)

// Render converts a daily log to an HTML fragment.
func Render(src []byte, w io.Writer) error {
	return goldmark.Convert(src, w)
}

// RenderPage converts a daily log to a standalone HTML page.
func RenderPage(title string, src []byte, w io.Writer) error {
	var body bytes.Buffer
	if err := Render(src, &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title), body.String())
	return err
}
