// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package hypervisor implements the control plane on top of a libvirt connection.
package hypervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/ironcore-dev/engine-setup/internal/channel"
	"github.com/ironcore-dev/engine-setup/internal/controlplane"
	libvirtutils "github.com/ironcore-dev/engine-setup/internal/libvirt/utils"
	"k8s.io/utils/ptr"
	"libvirt.org/go/libvirtxml"
	ctrl "sigs.k8s.io/controller-runtime"
)

const (
	MethodGetTaskInfo   = "getTaskInfo"
	MethodGetTaskStatus = "getTaskStatus"
	MethodGetVMStats    = "getVmStats"
	MethodGetHostStats  = "getHostStats"
	MethodDestroyVM     = "destroy"
	MethodCreateVM      = "create"
	MethodGetDomainXML  = "getDomainXML"

	// TaskVerb names the only kind of task a libvirt domain carries.
	TaskVerb = "domainJob"

	maxStoragePools = 1000
)

var log = ctrl.Log.WithName("hypervisor")

var (
	_ controlplane.Client       = (*Client)(nil)
	_ controlplane.VMOperations = (*Client)(nil)
)

// Client maps VMs to libvirt domains, tasks to domain jobs and storage domains to storage pools.
// It shares the libvirt connection and must not be used concurrently.
type Client struct {
	libvirt *libvirt.Libvirt
}

func NewClient(lv *libvirt.Libvirt) *Client {
	return &Client{libvirt: lv}
}

func remoteCallError(method string, err error) error {
	rErr := &controlplane.RemoteCallError{
		Method:  method,
		Code:    controlplane.CodeUnavailable,
		Message: err.Error(),
		Err:     err,
	}

	var lErr libvirt.Error
	if errors.As(err, &lErr) {
		rErr.Message = lErr.Message
		rErr.Code = controlplane.CodeHypervisorError
		if libvirtutils.IsErrorCode(err, libvirt.ErrNoDomain) {
			rErr.Code = controlplane.CodeNoSuchVM
		}
	}
	return rErr
}

func domain(method, vmID string) (libvirt.Domain, error) {
	id, err := libvirtutils.ParseUUID(vmID)
	if err != nil {
		return libvirt.Domain{}, &controlplane.RemoteCallError{
			Method:  method,
			Code:    controlplane.CodeInvalidArgument,
			Message: err.Error(),
			Err:     err,
		}
	}
	return libvirt.Domain{UUID: id}, nil
}

func domainStateToVMStatus(state libvirt.DomainState) controlplane.VMStatus {
	switch state {
	case libvirt.DomainRunning, libvirt.DomainBlocked:
		return controlplane.VMStatusUp
	case libvirt.DomainPaused:
		return controlplane.VMStatusPaused
	case libvirt.DomainShutdown:
		return controlplane.VMStatusPoweringDown
	case libvirt.DomainShutoff, libvirt.DomainCrashed:
		return controlplane.VMStatusDown
	case libvirt.DomainPmsuspended:
		return controlplane.VMStatusSuspended
	default:
		return controlplane.VMStatusUnknown
	}
}

func (c *Client) GetVMStats(_ context.Context, vmID string) ([]controlplane.VMStats, error) {
	dom, err := domain(MethodGetVMStats, vmID)
	if err != nil {
		return nil, err
	}

	state, _, err := c.libvirt.DomainGetState(dom, 0)
	if err != nil {
		return nil, remoteCallError(MethodGetVMStats, err)
	}

	return []controlplane.VMStats{{
		ID:     vmID,
		Status: domainStateToVMStatus(libvirt.DomainState(state)),
	}}, nil
}

func (c *Client) GetHostStats(_ context.Context) (*controlplane.HostStats, error) {
	pools, _, err := c.libvirt.ConnectListAllStoragePools(maxStoragePools, 0)
	if err != nil {
		return nil, remoteCallError(MethodGetHostStats, err)
	}

	stats := &controlplane.HostStats{StorageDomains: make(map[string]controlplane.StorageDomainStats, len(pools))}
	for _, pool := range pools {
		active, err := c.libvirt.StoragePoolIsActive(pool)
		if err != nil {
			return nil, remoteCallError(MethodGetHostStats, fmt.Errorf("error checking storage pool %s: %w", pool.Name, err))
		}
		stats.StorageDomains[libvirtutils.UUIDToString(pool.UUID)] = controlplane.StorageDomainStats{
			Acquired: ptr.To(active == 1),
		}
	}
	return stats, nil
}

func (c *Client) GetTaskInfo(_ context.Context, taskID string) (*controlplane.TaskInfo, error) {
	dom, err := domain(MethodGetTaskInfo, taskID)
	if err != nil {
		return nil, err
	}

	if _, _, err := c.libvirt.DomainGetState(dom, 0); err != nil {
		return nil, remoteCallError(MethodGetTaskInfo, err)
	}
	return &controlplane.TaskInfo{ID: taskID, Verb: TaskVerb}, nil
}

func (c *Client) GetTaskStatus(_ context.Context, taskID string) (*controlplane.TaskStatus, error) {
	dom, err := domain(MethodGetTaskStatus, taskID)
	if err != nil {
		return nil, err
	}

	jobType, elapsed, _, dataTotal, dataProcessed, _, _, _, _, _, _, _, err := c.libvirt.DomainGetJobInfo(dom)
	if err != nil {
		return nil, remoteCallError(MethodGetTaskStatus, err)
	}

	switch libvirt.DomainJobType(jobType) {
	case libvirt.DomainJobNone, libvirt.DomainJobCompleted:
		return &controlplane.TaskStatus{State: controlplane.TaskStateFinished, Result: controlplane.TaskResultSuccess}, nil
	case libvirt.DomainJobFailed:
		return &controlplane.TaskStatus{
			State:   controlplane.TaskStateFinished,
			Result:  controlplane.TaskResultFailure,
			Message: "domain job failed",
		}, nil
	case libvirt.DomainJobCancelled:
		return &controlplane.TaskStatus{
			State:   controlplane.TaskStateFinished,
			Result:  controlplane.TaskResultCancelled,
			Message: "domain job was cancelled",
		}, nil
	default:
		return &controlplane.TaskStatus{
			State:   controlplane.TaskStateRunning,
			Message: fmt.Sprintf("processed %d of %d bytes in %dms", dataProcessed, dataTotal, elapsed),
		}, nil
	}
}

func (c *Client) DestroyVM(_ context.Context, vmID string) error {
	dom, err := domain(MethodDestroyVM, vmID)
	if err != nil {
		return err
	}

	log.V(1).Info("Destroying domain", "VMID", vmID)
	// A missing or shut off domain is as good as destroyed.
	err = libvirtutils.IgnoreErrorCode(c.libvirt.DomainDestroyFlags(dom, libvirt.DomainDestroyDefault), libvirt.ErrNoDomain, libvirt.ErrOperationInvalid)
	if err != nil {
		return remoteCallError(MethodDestroyVM, err)
	}
	return nil
}

func (c *Client) CreateVM(_ context.Context, vmID string) error {
	dom, err := domain(MethodCreateVM, vmID)
	if err != nil {
		return err
	}

	log.V(1).Info("Starting domain", "VMID", vmID)
	if _, err := c.libvirt.DomainCreateWithFlags(dom, 0); err != nil {
		return remoteCallError(MethodCreateVM, err)
	}
	return nil
}

func (c *Client) DomainXML(_ context.Context, vmID string) (*libvirtxml.Domain, error) {
	dom, err := domain(MethodGetDomainXML, vmID)
	if err != nil {
		return nil, err
	}

	data, err := c.libvirt.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return nil, remoteCallError(MethodGetDomainXML, err)
	}

	domainXML := &libvirtxml.Domain{}
	if err := domainXML.Unmarshal(data); err != nil {
		return nil, controlplane.NewMalformedResponseError(MethodGetDomainXML, "error unmarshalling domain xml: %v", err)
	}
	return domainXML, nil
}

// ChannelPath looks up the host side of the named guest channel in the domain definition.
func (c *Client) ChannelPath(ctx context.Context, vmID, name string) (string, bool, error) {
	domainXML, err := c.DomainXML(ctx, vmID)
	if err != nil {
		return "", false, err
	}

	path, ok := channel.PathFromDomain(domainXML, name)
	return path, ok, nil
}
