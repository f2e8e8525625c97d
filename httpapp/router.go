package httpapp

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weftrun/weft"
)

// Router wraps a *mux.Router, starting one Execution per inbound request
// and driving its matched Handler to completion.
type Router struct {
	mux        *mux.Router
	controller *weft.Controller
	logger     *slog.Logger
	render     *Render
}

// NewRouter builds a Router backed by controller. Responses are written
// with render, defaulting to NewRender() if nil.
func NewRouter(controller *weft.Controller, render *Render, logger *slog.Logger) *Router {
	if render == nil {
		render = NewRender()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		mux:        mux.NewRouter(),
		controller: controller,
		logger:     logger,
		render:     render,
	}
}

// Handle registers handler for method and pattern, in gorilla/mux syntax
// (e.g. "/widgets/{id}").
func (r *Router) Handle(method, pattern string, handler Handler) {
	r.mux.HandleFunc(pattern, r.adapt(handler)).Methods(method)
}

// ServeHTTP implements http.Handler by delegating to the wrapped
// *mux.Router; unmatched requests get mux's own 404 behavior.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) adapt(handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		params := mux.Vars(req)
		done := make(chan struct{})
		var exec *weft.Execution

		r.controller.Start(func() {
			e := weft.Current()
			exec = e
			c := &Context{Request: req, Writer: w, Params: params, Execution: e}

			p := handler(c)
			weft.Then(p, func(resp Response) {
				r.render.Write(w, req, resp)
				e.Complete()
				close(done)
			})
		}, func(err error) {
			r.logger.Error("handler error", "path", req.URL.Path, "error", err)
			r.render.Write(w, req, Response{Status: http.StatusInternalServerError, Body: map[string]string{"error": err.Error()}})
			exec.Complete()
			close(done)
		}, nil, func(e *weft.Execution) {
			e.Put(req.RemoteAddr, params)
		})

		<-done
	}
}
