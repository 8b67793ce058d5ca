// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package healthcheck_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/ironcore-dev/engine-setup/internal/healthcheck"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Poller", func() {
	serve := func(handler http.HandlerFunc) string {
		srv := httptest.NewServer(handler)
		DeferCleanup(srv.Close)
		return strings.TrimPrefix(srv.URL, "http://")
	}

	It("should build the health url from the engine fqdn", func() {
		poller := NewPoller(log, PollerOptions{})
		Expect(poller.URL("engine.example.com")).To(Equal("http://engine.example.com/ovirt-engine/services/health"))
	})

	It("should report up when the body carries the liveness marker", func(ctx SpecContext) {
		var requestedPath string
		host := serve(func(w http.ResponseWriter, r *http.Request) {
			requestedPath = r.URL.Path
			_, _ = w.Write([]byte("DB Up!Welcome to Health Status!"))
		})

		poller := NewPoller(log, PollerOptions{})
		verdict := poller.Check(ctx, host)
		Expect(verdict.Up).To(BeTrue())
		Expect(verdict.StatusCode).To(Equal(http.StatusOK))
		Expect(verdict.Body).To(Equal("DB Up!Welcome to Health Status!"))
		Expect(requestedPath).To(Equal(DefaultPath))
		Expect(poller.IsUp(ctx, host)).To(BeTrue())
	})

	It("should report down when the service answers without the marker", func(ctx SpecContext) {
		host := serve(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("Welcome to Health Status!"))
		})

		verdict := NewPoller(log, PollerOptions{}).Check(ctx, host)
		Expect(verdict.Up).To(BeFalse())
		Expect(verdict.Err).NotTo(HaveOccurred())
		Expect(verdict.StatusCode).To(Equal(http.StatusOK))
	})

	It("should report down when the service fails", func(ctx SpecContext) {
		host := serve(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "DB Down!", http.StatusInternalServerError)
		})

		Expect(NewPoller(log, PollerOptions{}).IsUp(ctx, host)).To(BeFalse())
	})

	It("should report down without an error when the request times out", func(ctx SpecContext) {
		release := make(chan struct{})
		host := serve(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			_, _ = w.Write([]byte("DB Up!"))
		})
		DeferCleanup(func() { close(release) })

		verdict := NewPoller(log, PollerOptions{Timeout: 50 * time.Millisecond}).Check(ctx, host)
		Expect(verdict.Up).To(BeFalse())
		Expect(verdict.Err).To(HaveOccurred())
	})

	It("should report down when nothing listens", func(ctx SpecContext) {
		srv := httptest.NewServer(http.NotFoundHandler())
		host := strings.TrimPrefix(srv.URL, "http://")
		srv.Close()

		verdict := NewPoller(log, PollerOptions{}).Check(ctx, host)
		Expect(verdict.Up).To(BeFalse())
		Expect(verdict.StatusCode).To(BeZero())
		Expect(verdict.Err).To(HaveOccurred())
	})
})

var _ = Describe("HealthCheck", func() {
	It("should answer ok while the hypervisor connection is alive", func() {
		h := HealthCheck{Check: func() error { return nil }, Log: log}
		recorder := httptest.NewRecorder()
		h.HealthCheckHandler(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(recorder.Code).To(Equal(http.StatusOK))
	})

	It("should answer an internal error when the connection is gone", func() {
		h := HealthCheck{Check: func() error { return errors.New("not connected") }, Log: log}
		recorder := httptest.NewRecorder()
		h.HealthCheckHandler(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
	})
})
