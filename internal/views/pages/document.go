package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Document wraps body in a minimal HTML page.
func Document(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`+templ.EscapeString(title)+`</title><link rel="stylesheet" href="/assets/app.css"></head><body><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}
