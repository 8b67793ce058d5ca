// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package fake provides a scripted in-memory control plane.
package fake

import (
	"context"
	"sync"

	"github.com/ironcore-dev/engine-setup/internal/controlplane"
)

const (
	MethodGetTaskInfo   = "getTaskInfo"
	MethodGetTaskStatus = "getTaskStatus"
	MethodGetVMStats    = "getVmStats"
	MethodGetHostStats  = "getHostStats"
	MethodDestroyVM     = "destroy"
	MethodCreateVM      = "create"
)

// Reply is one scripted answer. Sequences are consumed in order; the last reply repeats once exhausted.
type Reply[T any] struct {
	Value T
	Err   error
}

type Client struct {
	mu sync.Mutex

	TaskInfo      map[string]Reply[*controlplane.TaskInfo]
	TaskStatuses  map[string][]Reply[*controlplane.TaskStatus]
	VMStats       []Reply[[]controlplane.VMStats]
	HostStats     []Reply[*controlplane.HostStats]
	DestroyErr    error
	CreateErr     error
	DestroyedVMs  []string
	CreatedVMs    []string
	calls         map[string]int
	statusCursors map[string]int
}

var (
	_ controlplane.Client       = (*Client)(nil)
	_ controlplane.VMOperations = (*Client)(nil)
)

func NewClient() *Client {
	return &Client{
		TaskInfo:      map[string]Reply[*controlplane.TaskInfo]{},
		TaskStatuses:  map[string][]Reply[*controlplane.TaskStatus]{},
		calls:         map[string]int{},
		statusCursors: map[string]int{},
	}
}

func next[T any](replies []Reply[T], cursor int) Reply[T] {
	if len(replies) == 0 {
		var zero Reply[T]
		return zero
	}
	if cursor >= len(replies) {
		return replies[len(replies)-1]
	}
	return replies[cursor]
}

// Calls returns how often method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Client) GetTaskInfo(_ context.Context, taskID string) (*controlplane.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[MethodGetTaskInfo]++

	reply, ok := c.TaskInfo[taskID]
	if !ok {
		return &controlplane.TaskInfo{ID: taskID}, nil
	}
	return reply.Value, reply.Err
}

func (c *Client) GetTaskStatus(_ context.Context, taskID string) (*controlplane.TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[MethodGetTaskStatus]++

	cursor := c.statusCursors[taskID]
	c.statusCursors[taskID] = cursor + 1
	reply := next(c.TaskStatuses[taskID], cursor)
	return reply.Value, reply.Err
}

func (c *Client) GetVMStats(_ context.Context, _ string) ([]controlplane.VMStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursor := c.calls[MethodGetVMStats]
	c.calls[MethodGetVMStats]++

	reply := next(c.VMStats, cursor)
	return reply.Value, reply.Err
}

func (c *Client) GetHostStats(_ context.Context) (*controlplane.HostStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursor := c.calls[MethodGetHostStats]
	c.calls[MethodGetHostStats]++

	reply := next(c.HostStats, cursor)
	return reply.Value, reply.Err
}

func (c *Client) DestroyVM(_ context.Context, vmID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[MethodDestroyVM]++

	if c.DestroyErr != nil {
		return c.DestroyErr
	}
	c.DestroyedVMs = append(c.DestroyedVMs, vmID)
	return nil
}

func (c *Client) CreateVM(_ context.Context, vmID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[MethodCreateVM]++

	if c.CreateErr != nil {
		return c.CreateErr
	}
	c.CreatedVMs = append(c.CreatedVMs, vmID)
	return nil
}

// VMStatus is a shorthand for a successful single-VM stats reply.
func VMStatus(vmID string, status controlplane.VMStatus) Reply[[]controlplane.VMStats] {
	return Reply[[]controlplane.VMStats]{Value: []controlplane.VMStats{{ID: vmID, Status: status}}}
}

// TaskState is a shorthand for a successful task status reply.
func TaskState(state, result string) Reply[*controlplane.TaskStatus] {
	return Reply[*controlplane.TaskStatus]{Value: &controlplane.TaskStatus{State: state, Result: result}}
}
