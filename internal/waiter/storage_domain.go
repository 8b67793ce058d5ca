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

const DefaultDomainInterval = 5 * time.Second

type DomainAcquiredOptions struct {
	Interval time.Duration
	// Timeout bounds the wait. Zero waits until the domain is acquired or ctx is cancelled.
	Timeout time.Duration
}

func setDomainAcquiredOptionsDefaults(opts *DomainAcquiredOptions) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultDomainInterval
	}
}

func domainAcquired(stats *controlplane.HostStats, sdUUID string) (bool, error) {
	if stats == nil || stats.StorageDomains == nil {
		return false, controlplane.NewMalformedResponseError("getHostStats", "no storage domain section in host stats")
	}
	sd, ok := stats.StorageDomains[sdUUID]
	if !ok {
		return false, controlplane.NewMalformedResponseError("getHostStats", "storage domain %s not reported", sdUUID)
	}
	if sd.Acquired == nil {
		return false, controlplane.NewMalformedResponseError("getHostStats", "storage domain %s has no acquired flag", sdUUID)
	}
	return *sd.Acquired, nil
}

// WaitForDomainAcquired blocks until the host holds the lease of the storage domain.
// A storage domain missing from the host stats is fatal.
func WaitForDomainAcquired(ctx context.Context, client controlplane.Client, sdUUID string, opts DomainAcquiredOptions) error {
	setDomainAcquiredOptionsDefaults(&opts)
	log := logr.FromContextOrDiscard(ctx).WithValues("StorageDomainUUID", sdUUID)

	log.Info("Waiting for storage domain to be acquired")
	timedOut, err := Poll(ctx, metrics.WaiterDomain, opts.Interval, opts.Timeout, func(ctx context.Context) (bool, error) {
		stats, err := client.GetHostStats(ctx)
		if err != nil {
			return false, fmt.Errorf("error getting host stats: %w", err)
		}

		acquired, err := domainAcquired(stats, sdUUID)
		if err != nil {
			return false, err
		}
		log.V(1).Info("Polled storage domain", "Acquired", acquired)
		return acquired, nil
	})
	if err != nil {
		return err
	}
	if timedOut {
		return &WaitTimeoutError{What: fmt.Sprintf("storage domain %s to be acquired", sdUUID), Timeout: opts.Timeout}
	}

	log.Info("Storage domain is acquired")
	return nil
}
