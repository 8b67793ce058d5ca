// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package appliance follows the engine setup running inside the appliance VM.
package appliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/channel"
	"github.com/ironcore-dev/engine-setup/internal/metrics"
	"github.com/ironcore-dev/engine-setup/internal/waiter"
)

const (
	MarkerSetupSuccess   = "HE_APPLIANCE_ENGINE_SETUP_SUCCESS"
	MarkerSetupFail      = "HE_APPLIANCE_ENGINE_SETUP_FAIL"
	MarkerRestoreSuccess = "HE_APPLIANCE_ENGINE_RESTORE_SUCCESS"
	MarkerRestoreFail    = "HE_APPLIANCE_ENGINE_RESTORE_FAIL"

	DefaultReadTimeout     = 1 * time.Second
	DefaultSetupTimeout    = 600 * time.Second
	DefaultEngineUpTimeout = 600 * time.Second
	DefaultHealthInterval  = 5 * time.Second
	DefaultKeepLines       = 20
)

// LineSource is a reconnectable line oriented channel, see channel.Connector.
type LineSource interface {
	Connect(ctx context.Context) error
	ReadLine(timeout time.Duration) (string, bool, error)
	Disconnect()
}

type HealthChecker interface {
	IsUp(ctx context.Context, hostname string) bool
}

type SetupFailedError struct {
	Marker string
	// Lines holds the last lines read before the marker.
	Lines []string
}

func (e *SetupFailedError) Error() string {
	return fmt.Sprintf("engine setup on the appliance reported %s, last output:\n%s", e.Marker, strings.Join(e.Lines, "\n"))
}

type Result struct {
	Marker  string
	Elapsed time.Duration
}

type MonitorOptions struct {
	EngineFQDN string
	// ReadTimeout bounds a single wait for channel data.
	ReadTimeout time.Duration
	// SetupTimeout is the longest silence tolerated on the channel.
	SetupTimeout    time.Duration
	EngineUpTimeout time.Duration
	HealthInterval  time.Duration
	KeepLines       int
}

func setMonitorOptionsDefaults(opts *MonitorOptions) {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.EngineUpTimeout <= 0 {
		opts.EngineUpTimeout = DefaultEngineUpTimeout
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.KeepLines <= 0 {
		opts.KeepLines = DefaultKeepLines
	}
}

// Monitor decides whether the engine set up by the appliance is ready: the appliance reports
// success on its channel and the engine answers its health check.
type Monitor struct {
	log    logr.Logger
	source LineSource
	health HealthChecker
	opts   MonitorOptions
}

func NewMonitor(log logr.Logger, source LineSource, health HealthChecker, opts MonitorOptions) (*Monitor, error) {
	if opts.EngineFQDN == "" {
		return nil, fmt.Errorf("must specify engine fqdn")
	}
	setMonitorOptionsDefaults(&opts)

	return &Monitor{
		log:    log,
		source: source,
		health: health,
		opts:   opts,
	}, nil
}

func (m *Monitor) WaitForEngineSetup(ctx context.Context) (Result, error) {
	start := time.Now()
	if err := m.source.Connect(ctx); err != nil {
		return Result{}, fmt.Errorf("error connecting to appliance: %w", err)
	}
	defer m.source.Disconnect()

	marker, err := m.drain(ctx)
	if err != nil {
		return Result{}, err
	}
	m.log.Info("Appliance finished engine setup", "Marker", marker)

	if err := m.waitForEngineUp(ctx); err != nil {
		return Result{}, err
	}

	elapsed := time.Since(start)
	m.log.Info("Engine is up", "EngineFQDN", m.opts.EngineFQDN, "Elapsed", elapsed.Round(time.Second))
	return Result{Marker: marker, Elapsed: elapsed}, nil
}

// drain reads the appliance output until a success or failure marker shows up.
func (m *Monitor) drain(ctx context.Context) (string, error) {
	start := time.Now()
	defer func() {
		metrics.WaitDuration.WithLabelValues(metrics.WaiterApplianceLine).Observe(time.Since(start).Seconds())
	}()

	var (
		pending      strings.Builder
		recent       []string
		lastActivity = time.Now()
	)
	observe := func(line string) (string, error) {
		metrics.PollAttempts.WithLabelValues(metrics.WaiterApplianceLine).Inc()
		m.log.V(2).Info("Appliance output", "Line", line)

		recent = append(recent, line)
		if len(recent) > m.opts.KeepLines {
			recent = recent[len(recent)-m.opts.KeepLines:]
		}

		switch {
		case strings.Contains(line, MarkerSetupSuccess):
			return MarkerSetupSuccess, nil
		case strings.Contains(line, MarkerRestoreSuccess):
			return MarkerRestoreSuccess, nil
		case strings.Contains(line, MarkerSetupFail):
			return "", &SetupFailedError{Marker: MarkerSetupFail, Lines: recent}
		case strings.Contains(line, MarkerRestoreFail):
			return "", &SetupFailedError{Marker: MarkerRestoreFail, Lines: recent}
		}
		return "", nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		chunk, timedOut, err := m.source.ReadLine(m.opts.ReadTimeout)
		if err != nil {
			metrics.PollErrors.WithLabelValues(metrics.WaiterApplianceLine).Inc()
			return "", fmt.Errorf("error reading appliance output: %w", err)
		}
		if chunk != "" {
			lastActivity = time.Now()
			pending.WriteString(chunk)
		}
		if timedOut && pending.Len() < channel.MaxLineLength {
			if silence := time.Since(lastActivity); silence >= m.opts.SetupTimeout {
				return "", &waiter.WaitTimeoutError{What: "output of the engine setup on the appliance", Timeout: m.opts.SetupTimeout}
			}
			continue
		}

		// Joined chunks are capped like a single read. A timed out tail stays pending.
		data := pending.String()
		pending.Reset()
		var lines []string
		for len(data) > channel.MaxLineLength || (timedOut && len(data) == channel.MaxLineLength) {
			lines = append(lines, data[:channel.MaxLineLength])
			data = data[channel.MaxLineLength:]
		}
		if timedOut {
			pending.WriteString(data)
		} else {
			lines = append(lines, data)
		}

		lastActivity = time.Now()
		for _, line := range lines {
			if marker, err := observe(line); err != nil || marker != "" {
				return marker, err
			}
		}
	}
}

func (m *Monitor) waitForEngineUp(ctx context.Context) error {
	m.log.Info("Waiting for the engine to be up", "EngineFQDN", m.opts.EngineFQDN)
	timedOut, err := waiter.Poll(ctx, metrics.WaiterEngineHealth, m.opts.HealthInterval, m.opts.EngineUpTimeout, func(ctx context.Context) (bool, error) {
		return m.health.IsUp(ctx, m.opts.EngineFQDN), nil
	})
	if err != nil {
		return err
	}
	if timedOut {
		return &waiter.WaitTimeoutError{What: fmt.Sprintf("engine %s to be up", m.opts.EngineFQDN), Timeout: m.opts.EngineUpTimeout}
	}
	return nil
}
