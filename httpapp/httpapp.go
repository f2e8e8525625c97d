// Package httpapp is a thin collaborator layer that drives a weft
// Controller from inbound HTTP requests: one Execution per request, a
// Promise-composed handler chain, JSON/plain rendering and health checks.
// It does not reimplement HTTP parsing, sessions, crypto or a DI
// container — those stay out of scope, same as the runtime underneath it.
package httpapp

import (
	"net/http"

	"github.com/weftrun/weft"
)

// Context carries the per-request values a Handler needs: the raw
// http.Request/ResponseWriter, route parameters, and the Execution the
// request is running on, whose Registry already has the request's leaf
// joined over the Controller's base registry.
type Context struct {
	Request   *http.Request
	Writer    http.ResponseWriter
	Params    map[string]string
	Execution *weft.Execution
}

// Response is what a Handler's Promise resolves to: a status code and a
// body Render knows how to write.
type Response struct {
	Status int
	Body   any
}

// Handler is the unit of composition in the HTTP Collaborator Layer:
// request-scoped user code that returns a Promise of a Response.
type Handler func(*Context) weft.Promise[Response]

// Chain composes handlers by flatMap-ing their Promises in sequence: each
// handler's Response becomes the input the next handler's Promise is
// awaited after, and the chain short-circuits on the first error. The
// final Response is the last handler's.
func Chain(handlers ...Handler) Handler {
	return func(c *Context) weft.Promise[Response] {
		if len(handlers) == 0 {
			return weft.Of(Response{Status: http.StatusNoContent})
		}
		p := handlers[0](c)
		for _, h := range handlers[1:] {
			h := h
			p = weft.FlatMap(p, func(Response) weft.Promise[Response] {
				return h(c)
			})
		}
		return p
	}
}
