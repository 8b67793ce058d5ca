// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/metrics"
	"github.com/ironcore-dev/engine-setup/internal/osutils"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultRetries = 5
	DefaultDelay   = 5 * time.Second
)

// DialFunc opens a stream connection to the socket at path.
type DialFunc func(ctx context.Context, path string) (net.Conn, error)

type ConnectorOptions struct {
	// Retries is the number of connection attempts before giving up.
	Retries int
	// Delay is the pause between two connection attempts.
	Delay time.Duration
	Dial  DialFunc
}

func setConnectorOptionsDefaults(opts *ConnectorOptions) {
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Dial == nil {
		opts.Dial = DialUnix
	}
}

// DialUnix connects to the unix socket at path. A missing socket is reported before dialing
// so the retry log tells a not yet started VM apart from a refused connection.
func DialUnix(ctx context.Context, path string) (net.Conn, error) {
	ok, err := osutils.SocketExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("socket %s does not exist", path)
	}

	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// Connector owns the single connection to the appliance channel of one VM.
// It is not safe for concurrent use.
type Connector struct {
	log     logr.Logger
	path    string
	retries int
	delay   time.Duration
	dial    DialFunc

	reader *LineReader
}

func NewConnector(log logr.Logger, path string, opts ConnectorOptions) *Connector {
	setConnectorOptionsDefaults(&opts)

	return &Connector{
		log:     log,
		path:    path,
		retries: opts.Retries,
		delay:   opts.Delay,
		dial:    opts.Dial,
	}
}

func (c *Connector) Path() string {
	return c.path
}

func (c *Connector) IsConnected() bool {
	return c.reader != nil && c.reader.Connected()
}

// Connect establishes the channel connection. It does nothing if the connector is already connected.
func (c *Connector) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	var (
		attempt int
		conn    net.Conn
		lastErr error
	)
	backoff := wait.Backoff{
		Duration: c.delay,
		Factor:   1,
		Steps:    c.retries,
	}
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		metrics.ChannelConnectAttempts.Inc()

		conn, lastErr = c.dial(ctx, c.path)
		if lastErr != nil {
			c.log.Error(lastErr, "Failed to connect to channel", "Path", c.path, "Attempt", attempt, "Retries", c.retries)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		c.reader = nil
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("error connecting to %s: %w", c.path, ctxErr)
		}
		return &ConnectionExhaustedError{Path: c.path, Retries: c.retries, Last: lastErr}
	}

	c.log.V(1).Info("Connected to channel", "Path", c.path, "Attempt", attempt)
	c.reader = NewLineReader(c.path, conn)
	return nil
}

// Disconnect closes the connection. Errors while closing are logged and dropped.
func (c *Connector) Disconnect() {
	if c.reader == nil {
		return
	}
	if err := c.reader.Close(); err != nil {
		c.log.V(1).Info("Ignoring error while closing channel", "Path", c.path, "Error", err.Error())
	}
	c.reader = nil
}

// ReadLine reads the next line from the channel, see LineReader.ReadLine. A connection failure
// leaves the connector disconnected.
func (c *Connector) ReadLine(timeout time.Duration) (string, bool, error) {
	if c.reader == nil {
		return "", false, ErrNotConnected
	}

	line, timedOut, err := c.reader.ReadLine(timeout)
	if err != nil {
		c.reader = nil
		return "", false, err
	}
	return line, timedOut, nil
}
