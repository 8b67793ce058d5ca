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

const DefaultVMInterval = 5 * time.Second

type VMDownOptions struct {
	Interval time.Duration
	// Timeout bounds the wait. Zero waits until the VM is down or ctx is cancelled.
	Timeout time.Duration
}

func setVMDownOptionsDefaults(opts *VMDownOptions) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultVMInterval
	}
}

// WaitForVMDown blocks until the VM is reported down. destroyed is set if the VM vanished
// from the hypervisor instead, in which case no further destroy is needed.
func WaitForVMDown(ctx context.Context, client controlplane.Client, vmID string, opts VMDownOptions) (destroyed bool, err error) {
	setVMDownOptionsDefaults(&opts)
	log := logr.FromContextOrDiscard(ctx).WithValues("VMID", vmID)

	log.Info("Waiting for VM to be down")
	var lastStatus controlplane.VMStatus
	timedOut, err := Poll(ctx, metrics.WaiterVMDown, opts.Interval, opts.Timeout, func(ctx context.Context) (bool, error) {
		stats, err := client.GetVMStats(ctx, vmID)
		if err != nil {
			if controlplane.IsNoSuchVM(err) {
				log.Info("VM no longer exists")
				destroyed = true
				return true, nil
			}
			return false, fmt.Errorf("error getting stats of vm %s: %w", vmID, err)
		}
		if len(stats) == 0 {
			return false, controlplane.NewMalformedResponseError("getVmStats", "no stats for vm %s", vmID)
		}

		status := stats[0].Status
		if status != lastStatus {
			log.V(1).Info("VM status changed", "Status", status)
			lastStatus = status
		}
		return status == controlplane.VMStatusDown, nil
	})
	if err != nil {
		return false, err
	}
	if timedOut {
		return false, &WaitTimeoutError{What: fmt.Sprintf("vm %s to be down", vmID), Timeout: opts.Timeout}
	}

	log.Info("VM is down", "Destroyed", destroyed)
	return destroyed, nil
}
