// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"bufio"
	"errors"
	"net"
	"os"
	"time"
)

// MaxLineLength caps a single line read from a channel. Longer lines are returned in chunks.
const MaxLineLength = 1024

// LineReader reads newline-delimited text from a connected channel socket.
type LineReader struct {
	path string
	conn net.Conn
	buf  *bufio.Reader
}

func NewLineReader(path string, conn net.Conn) *LineReader {
	r := &LineReader{
		path: path,
		conn: conn,
	}
	if conn != nil {
		r.buf = bufio.NewReaderSize(conn, MaxLineLength)
	}
	return r
}

// ReadLine returns the next line without its terminating newline. Every wait for data is bounded
// by timeout. When a wait elapses, the bytes collected so far are returned with timedOut set.
// A line reaching MaxLineLength is returned as is, without timedOut.
//
// Any other read failure closes the connection and returns a *ConnectionError.
func (r *LineReader) ReadLine(timeout time.Duration) (line string, timedOut bool, err error) {
	if r.conn == nil {
		return "", false, ErrNotConnected
	}

	data := make([]byte, 0, MaxLineLength)
	for len(data) < MaxLineLength {
		if r.buf.Buffered() == 0 {
			if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return "", false, r.fail(err)
			}
		}

		b, err := r.buf.ReadByte()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return string(data), true, nil
			}
			return "", false, r.fail(err)
		}

		if b == '\n' {
			return string(data), false, nil
		}
		data = append(data, b)
	}

	return string(data), false, nil
}

// Connected reports whether the reader still owns a connection.
func (r *LineReader) Connected() bool {
	return r.conn != nil
}

// Close releases the connection. Closing an already closed reader is a no-op.
func (r *LineReader) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.buf = nil
	return err
}

func (r *LineReader) fail(err error) error {
	_ = r.Close()
	return &ConnectionError{Path: r.path, Err: err}
}
