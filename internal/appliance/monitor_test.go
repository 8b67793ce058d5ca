// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package appliance_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/ironcore-dev/engine-setup/internal/appliance"
	"github.com/ironcore-dev/engine-setup/internal/channel"
	"github.com/ironcore-dev/engine-setup/internal/healthcheck"
	"github.com/ironcore-dev/engine-setup/internal/waiter"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type read struct {
	chunk    string
	timedOut bool
}

// scriptedSource replays reads and reports a timeout once they are used up.
type scriptedSource struct {
	reads []read
}

func (s *scriptedSource) Connect(context.Context) error { return nil }

func (s *scriptedSource) Disconnect() {}

func (s *scriptedSource) ReadLine(time.Duration) (string, bool, error) {
	if len(s.reads) == 0 {
		return "", true, nil
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	return r.chunk, r.timedOut, nil
}

var _ = Describe("Monitor", func() {
	var (
		socketPath string
		engineUp   atomic.Bool
		engineHost string
		opts       MonitorOptions
	)

	BeforeEach(func() {
		// Keep the directory short, unix socket paths are limited to 108 characters.
		dir, err := os.MkdirTemp("", "he")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		socketPath = channel.Path(dir, "9c1e", channel.DefaultName)

		engineUp.Store(true)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engineUp.Load() {
				_, _ = w.Write([]byte("DB Up!Welcome to Health Status!"))
				return
			}
			http.Error(w, "DB Down!", http.StatusServiceUnavailable)
		}))
		DeferCleanup(srv.Close)
		engineHost = strings.TrimPrefix(srv.URL, "http://")

		opts = MonitorOptions{
			EngineFQDN:      engineHost,
			ReadTimeout:     10 * time.Millisecond,
			SetupTimeout:    time.Second,
			EngineUpTimeout: time.Second,
			HealthInterval:  10 * time.Millisecond,
		}
	})

	// appliance accepts one connection and plays the given writes, pausing between them.
	appliance := func(pause time.Duration, writes ...string) <-chan struct{} {
		l, err := net.Listen("unix", socketPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(l.Close)

		closed := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer func() { _ = conn.Close() }()

			for _, w := range writes {
				if _, err := conn.Write([]byte(w)); err != nil {
					return
				}
				time.Sleep(pause)
			}
			// Block until the monitor hangs up.
			_, _ = io.Copy(io.Discard, conn)
			close(closed)
		}()
		return closed
	}

	newMonitor := func() *Monitor {
		connector := channel.NewConnector(log, socketPath, channel.ConnectorOptions{Retries: 2, Delay: 10 * time.Millisecond})
		poller := healthcheck.NewPoller(log, healthcheck.PollerOptions{Timeout: time.Second})
		m, err := NewMonitor(log, connector, poller, opts)
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	It("should require the engine fqdn", func() {
		_, err := NewMonitor(log, nil, nil, MonitorOptions{})
		Expect(err).To(HaveOccurred())
	})

	It("should succeed once setup reports success and the engine is up", func(ctx SpecContext) {
		closed := appliance(0, "Running engine-setup\n", "[ INFO ] Stage: Closing up\n", MarkerSetupSuccess+"\n")

		result, err := newMonitor().WaitForEngineSetup(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Marker).To(Equal(MarkerSetupSuccess))
		Eventually(closed).Should(BeClosed())
	})

	It("should join a marker split over several reads", func(ctx SpecContext) {
		appliance(50*time.Millisecond, "HE_APPLIANCE_ENGINE_", "RESTORE_SUCCESS\n")

		result, err := newMonitor().WaitForEngineSetup(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Marker).To(Equal(MarkerRestoreSuccess))
	})

	It("should report a failed setup with the last lines", func(ctx SpecContext) {
		closed := appliance(0, "[ ERROR ] Failed to execute stage 'Misc configuration'\n", MarkerSetupFail+"\n")

		_, err := newMonitor().WaitForEngineSetup(ctx)
		var failed *SetupFailedError
		Expect(errors.As(err, &failed)).To(BeTrue())
		Expect(failed.Marker).To(Equal(MarkerSetupFail))
		Expect(failed.Lines).To(ContainElement(ContainSubstring("Misc configuration")))
		Eventually(closed).Should(BeClosed())
	})

	It("should give up when the appliance stays silent", func(ctx SpecContext) {
		opts.SetupTimeout = 100 * time.Millisecond
		appliance(0, "Starting engine-setup\n")

		start := time.Now()
		_, err := newMonitor().WaitForEngineSetup(ctx)
		var timeoutErr *waiter.WaitTimeoutError
		Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically(">=", opts.SetupTimeout))
	})

	It("should give up when the engine does not come up", func(ctx SpecContext) {
		engineUp.Store(false)
		opts.EngineUpTimeout = 50 * time.Millisecond
		appliance(0, MarkerSetupSuccess+"\n")

		_, err := newMonitor().WaitForEngineSetup(ctx)
		var timeoutErr *waiter.WaitTimeoutError
		Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		Expect(timeoutErr.What).To(ContainSubstring(engineHost))
	})

	It("should fail when the appliance hangs up before reporting", func(ctx SpecContext) {
		l, err := net.Listen("unix", socketPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(l.Close)
		go func() {
			defer GinkgoRecover()
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("Starting engine-setup\n"))
			_ = conn.Close()
		}()

		_, err = newMonitor().WaitForEngineSetup(ctx)
		var connErr *channel.ConnectionError
		Expect(errors.As(err, &connErr)).To(BeTrue())
	})

	It("should cap output trickling in without a newline", func(ctx SpecContext) {
		source := &scriptedSource{}
		for range 5 {
			source.reads = append(source.reads, read{chunk: strings.Repeat("x", 1000), timedOut: true})
		}
		source.reads = append(source.reads, read{chunk: MarkerSetupFail})

		m, err := NewMonitor(log, source, nil, opts)
		Expect(err).NotTo(HaveOccurred())

		_, err = m.WaitForEngineSetup(ctx)
		var failed *SetupFailedError
		Expect(errors.As(err, &failed)).To(BeTrue())
		Expect(failed.Lines).To(HaveLen(5))
		for _, line := range failed.Lines {
			Expect(len(line)).To(BeNumerically("<=", channel.MaxLineLength))
		}
		Expect(failed.Lines[0]).To(HaveLen(channel.MaxLineLength))
		Expect(failed.Lines[4]).To(HaveSuffix(MarkerSetupFail))
		Expect(strings.Join(failed.Lines, "")).To(HaveLen(5000 + len(MarkerSetupFail)))
	})

	It("should fail when the channel socket never shows up", func(ctx SpecContext) {
		_, err := newMonitor().WaitForEngineSetup(ctx)
		var exhausted *channel.ConnectionExhaustedError
		Expect(errors.As(err, &exhausted)).To(BeTrue())
		Expect(exhausted.Retries).To(Equal(2))
	})
})
