// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package waiter blocks until a control plane operation reaches a terminal state.
package waiter

import (
	"context"
	"time"

	"github.com/ironcore-dev/engine-setup/internal/metrics"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Poll runs condition immediately and then every interval until it is done or fails.
// A non-positive timeout polls until ctx is cancelled. timedOut is only set when the
// timeout elapsed; cancellation of ctx is returned as ctx.Err() unless the condition
// failed with an error of its own.
func Poll(ctx context.Context, waiter string, interval, timeout time.Duration, condition wait.ConditionWithContextFunc) (timedOut bool, err error) {
	start := time.Now()
	defer func() {
		metrics.WaitDuration.WithLabelValues(waiter).Observe(time.Since(start).Seconds())
	}()

	counted := func(ctx context.Context) (bool, error) {
		metrics.PollAttempts.WithLabelValues(waiter).Inc()
		done, err := condition(ctx)
		if err != nil {
			metrics.PollErrors.WithLabelValues(waiter).Inc()
		}
		return done, err
	}

	if timeout > 0 {
		err = wait.PollUntilContextTimeout(ctx, interval, timeout, true, counted)
	} else {
		err = wait.PollUntilContextCancel(ctx, interval, true, counted)
	}

	switch {
	case err == nil:
		return false, nil
	case ctx.Err() != nil && wait.Interrupted(err):
		return false, ctx.Err()
	case timeout > 0 && wait.Interrupted(err):
		return true, nil
	default:
		return false, err
	}
}
