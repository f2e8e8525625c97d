// Command weftserver is a minimal demonstration of wiring weft's
// Controller, Router, Render and health checks together.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weftrun/weft"
	"github.com/weftrun/weft/httpapp"
	"github.com/weftrun/weft/interceptors"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	weft.AddInterceptor(interceptors.Logging(logger))
	weft.AddInterceptor(interceptors.Tracing("weftserver.segment"))

	controller := weft.NewController(
		weft.WithLogger(logger),
		weft.WithBaseRegistry(weft.NewRegistry(logger)),
	)
	defer controller.Shutdown()

	render := httpapp.NewRender()
	router := httpapp.NewRouter(controller, render, logger)

	health := httpapp.NewHealthRegistry(controller, prometheus.DefaultRegisterer)
	health.Register("self", func(ctx context.Context) error { return nil })

	router.Handle(http.MethodGet, "/widgets/{id}", widgetHandler)
	router.Handle(http.MethodGet, "/health", health.Handler())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func widgetHandler(c *httpapp.Context) weft.Promise[httpapp.Response] {
	id := c.Params["id"]
	probe := weft.Blocking(func() (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "widget-" + id, nil
	})
	return weft.Map(probe, func(name string) httpapp.Response {
		return httpapp.Response{Status: http.StatusOK, Body: map[string]string{"id": id, "name": name}}
	})
}
