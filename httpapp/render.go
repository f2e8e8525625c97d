package httpapp

import (
	"net/http"

	"github.com/go-chi/render"
)

// Render writes a Response to an http.ResponseWriter via go-chi/render. It
// is the only place in this package that knows about response-body
// encoding; it knows nothing about the runtime beyond standard net/http
// types.
type Render struct{}

// NewRender returns the default Render.
func NewRender() *Render { return &Render{} }

// Write sets the status code (defaulting to 200) and encodes resp.Body as
// JSON, or as plain text when Body is a string. A nil Body writes only the
// status line.
func (*Render) Write(w http.ResponseWriter, req *http.Request, resp Response) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	render.Status(req, status)

	switch body := resp.Body.(type) {
	case nil:
		w.WriteHeader(status)
	case string:
		render.PlainText(w, req, body)
	default:
		render.JSON(w, req, body)
	}
}
