// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when reading from a channel that has no live connection.
var ErrNotConnected = errors.New("channel is not connected")

// ConnectionError reports a failure of an established channel connection. The connection
// has already been torn down when this error is returned.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConnectionExhaustedError is returned by Connector.Connect once every connection attempt failed.
type ConnectionExhaustedError struct {
	Path    string
	Retries int
	Last    error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d retries: %v", e.Path, e.Retries, e.Last)
}

func (e *ConnectionExhaustedError) Unwrap() error {
	return e.Last
}
