// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package status serves metrics and liveness of a running engine-setup.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ctrl "sigs.k8s.io/controller-runtime"
)

var log = ctrl.Log.WithName("http")

type HandlerOptions struct {
	Log         logr.Logger
	HealthCheck healthcheck.HealthCheck
	Version     string
}

func setHandlerOptionsDefaults(opts *HandlerOptions) {
	if opts.Log.GetSink() == nil {
		opts.Log = log.WithName("status")
	}
	if opts.HealthCheck.Check == nil {
		opts.HealthCheck.Check = func() error { return nil }
	}
	if opts.HealthCheck.Log.GetSink() == nil {
		opts.HealthCheck.Log = opts.Log
	}
}

func logRequest(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reqLog := log.WithValues("Method", req.Method, "Path", req.URL.Path)
			reqLog.V(2).Info("Request")
			next.ServeHTTP(w, req.WithContext(logr.NewContext(req.Context(), reqLog)))
		})
	}
}

func NewHandler(opts HandlerOptions) http.Handler {
	setHandlerOptionsDefaults(&opts)

	r := chi.NewRouter()
	r.Use(logRequest(opts.Log))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.MethodFunc(http.MethodGet, "/health", opts.HealthCheck.HealthCheckHandler)
	r.MethodFunc(http.MethodGet, "/version", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, opts.Version)
	})

	return r
}

type ServerOptions struct {
	Addr            string
	GracefulTimeout time.Duration
}

// Run serves handler until ctx is done. An empty address disables the server.
func Run(ctx context.Context, setupLog logr.Logger, handler http.Handler, opts ServerOptions) error {
	if opts.Addr == "" {
		setupLog.V(1).Info("Status server address isn't configured. Status server is disabled.")
		return nil
	}

	srv := http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		setupLog.Info("Shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.GracefulTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "status server wasn't shutdown properly")
		} else {
			setupLog.Info("Status server is shutdown")
		}
	}()

	setupLog.Info("Starting status server", "Address", opts.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error listening / serving status server: %w", err)
	}

	wg.Wait()
	return nil
}
