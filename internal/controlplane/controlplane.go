// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package controlplane describes the hypervisor management surface the deployment waits on.
package controlplane

import "context"

const (
	TaskStateFinished = "finished"
	TaskStateRunning  = "running"

	TaskResultSuccess   = "success"
	TaskResultFailure   = "failure"
	TaskResultCancelled = "cancelled"
)

type VMStatus string

const (
	VMStatusUp           VMStatus = "Up"
	VMStatusDown         VMStatus = "Down"
	VMStatusPaused       VMStatus = "Paused"
	VMStatusPoweringDown VMStatus = "Powering down"
	VMStatusSuspended    VMStatus = "Suspended"
	VMStatusUnknown      VMStatus = "Unknown"
)

type TaskInfo struct {
	ID   string
	Verb string
}

type TaskStatus struct {
	State   string
	Result  string
	Message string
}

func (s TaskStatus) Finished() bool {
	return s.State == TaskStateFinished
}

type VMStats struct {
	ID     string
	Status VMStatus
}

type StorageDomainStats struct {
	// Acquired is nil when the host did not report the flag.
	Acquired *bool
}

type HostStats struct {
	StorageDomains map[string]StorageDomainStats
}

// Client is the read side of the control plane. Failures are reported as *RemoteCallError.
type Client interface {
	GetTaskInfo(ctx context.Context, taskID string) (*TaskInfo, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	GetVMStats(ctx context.Context, vmID string) ([]VMStats, error)
	GetHostStats(ctx context.Context) (*HostStats, error)
}

// VMOperations changes the power state of a VM.
type VMOperations interface {
	DestroyVM(ctx context.Context, vmID string) error
	CreateVM(ctx context.Context, vmID string) error
}
