// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package waiter

import (
	"fmt"
	"time"
)

type TaskTimeoutError struct {
	Verb    string
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for task %s (%s) to finish", e.Timeout, e.TaskID, e.Verb)
}

type TaskFailedError struct {
	Verb    string
	TaskID  string
	Result  string
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s (%s) finished with result %q: %s", e.TaskID, e.Verb, e.Result, e.Message)
}

// WaitTimeoutError is returned by waits that are unbounded unless the caller sets a timeout.
type WaitTimeoutError struct {
	What    string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
}
