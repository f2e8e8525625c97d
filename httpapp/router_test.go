package httpapp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft"
	"github.com/weftrun/weft/httpapp"
)

func newTestRouter(t *testing.T) (*httpapp.Router, *weft.Controller) {
	controller := weft.NewController(weft.WithWorkerCount(2))
	t.Cleanup(controller.Shutdown)
	router := httpapp.NewRouter(controller, nil, nil)
	return router, controller
}

func TestRouterDispatchesMatchedHandler(t *testing.T) {
	router, _ := newTestRouter(t)
	router.Handle(http.MethodGet, "/widgets/{id}", func(c *httpapp.Context) weft.Promise[httpapp.Response] {
		id := c.Params["id"]
		return weft.Of(httpapp.Response{Status: http.StatusOK, Body: map[string]string{"id": id}})
	})

	req := httptest.NewRequest(http.MethodGet, "/widgets/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"42"`)
}

func TestRouterSurfacesHandlerErrorAs500(t *testing.T) {
	router, _ := newTestRouter(t)
	router.Handle(http.MethodGet, "/boom", func(c *httpapp.Context) weft.Promise[httpapp.Response] {
		return weft.OfError[httpapp.Response](assert.AnError)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouterChainsHandlers(t *testing.T) {
	router, _ := newTestRouter(t)
	first := func(c *httpapp.Context) weft.Promise[httpapp.Response] {
		c.Execution.Put("first-ran")
		return weft.Of(httpapp.Response{Status: http.StatusOK})
	}
	second := func(c *httpapp.Context) weft.Promise[httpapp.Response] {
		ranFirst, _ := weft.MaybeGet[string](c.Execution.Registry())
		return weft.Of(httpapp.Response{Status: http.StatusOK, Body: map[string]string{"prior": ranFirst}})
	}
	router.Handle(http.MethodGet, "/chain", httpapp.Chain(first, second))

	req := httptest.NewRequest(http.MethodGet, "/chain", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "first-ran")
}
