// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/controlplane"
	"github.com/ironcore-dev/engine-setup/internal/metrics"
)

const (
	DefaultTaskInterval         = 1 * time.Second
	DefaultTaskTimeout          = 600 * time.Second
	DefaultTaskProgressInterval = 10 * time.Second
)

type TaskOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// ProgressInterval is the minimum time between two progress log lines.
	ProgressInterval time.Duration
}

func setTaskOptionsDefaults(opts *TaskOptions) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTaskInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTaskTimeout
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultTaskProgressInterval
	}
}

// WaitForTask blocks until the task is finished. Remote call failures are returned immediately.
func WaitForTask(ctx context.Context, client controlplane.Client, taskID string, opts TaskOptions) error {
	setTaskOptionsDefaults(&opts)
	log := logr.FromContextOrDiscard(ctx).WithValues("TaskID", taskID)

	info, err := client.GetTaskInfo(ctx, taskID)
	if err != nil {
		metrics.PollErrors.WithLabelValues(metrics.WaiterTask).Inc()
		return fmt.Errorf("error getting info of task %s: %w", taskID, err)
	}
	if info == nil {
		return controlplane.NewMalformedResponseError("getTaskInfo", "no info for task %s", taskID)
	}
	log = log.WithValues("Verb", info.Verb)

	log.V(1).Info("Waiting for task to finish", "Timeout", opts.Timeout)
	start := time.Now()
	lastProgress := start

	var status *controlplane.TaskStatus
	timedOut, err := Poll(ctx, metrics.WaiterTask, opts.Interval, opts.Timeout, func(ctx context.Context) (bool, error) {
		s, err := client.GetTaskStatus(ctx, taskID)
		if err != nil {
			return false, fmt.Errorf("error getting status of task %s: %w", taskID, err)
		}
		if s == nil {
			return false, controlplane.NewMalformedResponseError("getTaskStatus", "no status for task %s", taskID)
		}
		status = s

		if s.Finished() {
			return true, nil
		}
		if time.Since(lastProgress) >= opts.ProgressInterval {
			log.Info("Task is still running", "State", s.State, "Message", s.Message, "Elapsed", time.Since(start).Round(time.Second))
			lastProgress = time.Now()
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if timedOut {
		return &TaskTimeoutError{Verb: info.Verb, TaskID: taskID, Timeout: opts.Timeout}
	}

	if status.Result != controlplane.TaskResultSuccess {
		return &TaskFailedError{Verb: info.Verb, TaskID: taskID, Result: status.Result, Message: status.Message}
	}

	log.Info("Task finished", "Elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
