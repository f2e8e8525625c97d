package httpapp_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft"
	"github.com/weftrun/weft/httpapp"
)

func TestHealthHandlerReports503OnFailingCheck(t *testing.T) {
	controller := weft.NewController(weft.WithWorkerCount(2))
	t.Cleanup(controller.Shutdown)

	registry := prometheus.NewRegistry()
	health := httpapp.NewHealthRegistry(controller, registry)
	health.Register("ok", func(context.Context) error { return nil })
	health.Register("bad", func(context.Context) error { return errors.New("down") })

	router := httpapp.NewRouter(controller, nil, nil)
	router.Handle(http.MethodGet, "/health", health.Handler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"down"`)
}

func TestHealthHandlerReports200WhenAllPass(t *testing.T) {
	controller := weft.NewController(weft.WithWorkerCount(2))
	t.Cleanup(controller.Shutdown)

	registry := prometheus.NewRegistry()
	health := httpapp.NewHealthRegistry(controller, registry)
	health.Register("ok", func(context.Context) error { return nil })

	router := httpapp.NewRouter(controller, nil, nil)
	router.Handle(http.MethodGet, "/health", health.Handler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
