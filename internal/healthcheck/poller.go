// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/metrics"
)

const (
	DefaultTimeout = 20 * time.Second
	DefaultPath    = "/ovirt-engine/services/health"

	// maxBodySize bounds how much of a health response is kept for classification and diagnostics.
	maxBodySize = 64 * 1024
)

// LivenessPattern matches a health response reporting that the engine database is reachable.
var LivenessPattern = regexp.MustCompile(`DB Up!`)

// Verdict is the outcome of a single health probe.
type Verdict struct {
	Up bool
	// Body is the raw response body, empty if the request failed.
	Body string
	// StatusCode is zero if no response was received.
	StatusCode int
	// Err is the transport error of a failed probe.
	Err error
}

type PollerOptions struct {
	Timeout time.Duration
	Path    string
	Scheme  string
	Client  *http.Client
}

func setPollerOptionsDefaults(opts *PollerOptions) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Scheme == "" {
		opts.Scheme = "http"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
}

// Poller probes the engine health servlet. It never retries; the callers own the cadence.
type Poller struct {
	log    logr.Logger
	client *http.Client
	path   string
	scheme string
}

func NewPoller(log logr.Logger, opts PollerOptions) *Poller {
	setPollerOptionsDefaults(&opts)

	return &Poller{
		log:    log,
		client: opts.Client,
		path:   opts.Path,
		scheme: opts.Scheme,
	}
}

func (p *Poller) URL(hostname string) string {
	return fmt.Sprintf("%s://%s%s", p.scheme, hostname, p.path)
}

// IsUp reports whether the engine on hostname answers with a live database.
func (p *Poller) IsUp(ctx context.Context, hostname string) bool {
	return p.Check(ctx, hostname).Up
}

// Check issues one health request. Transport failures yield a down verdict, never an error.
func (p *Poller) Check(ctx context.Context, hostname string) Verdict {
	url := p.URL(hostname)
	log := p.log.WithValues("URL", url)

	verdict := p.probe(ctx, url)
	switch {
	case verdict.Err != nil:
		log.V(1).Info("Engine health check failed", "Error", verdict.Err.Error())
	case !verdict.Up:
		log.V(1).Info("Engine is not up yet", "StatusCode", verdict.StatusCode, "Body", verdict.Body)
	default:
		log.V(1).Info("Engine is up")
	}

	if verdict.Up {
		metrics.HealthChecks.WithLabelValues(metrics.HealthResultUp).Inc()
	} else {
		metrics.HealthChecks.WithLabelValues(metrics.HealthResultDown).Inc()
	}
	return verdict
}

func (p *Poller) probe(ctx context.Context, url string) Verdict {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Verdict{Err: err}
	}

	res, err := p.client.Do(req)
	if err != nil {
		return Verdict{Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return Verdict{StatusCode: res.StatusCode, Err: fmt.Errorf("error reading health response: %w", err)}
	}

	body := string(data)
	return Verdict{
		Up:         LivenessPattern.MatchString(body),
		Body:       body,
		StatusCode: res.StatusCode,
	}
}
