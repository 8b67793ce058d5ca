// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"path/filepath"

	"libvirt.org/go/libvirtxml"
)

const (
	DefaultDir  = "/var/lib/libvirt/qemu/channels"
	DefaultName = "org.ovirt.hosted-engine-setup.0"
)

// Path returns the socket path qemu binds for the named virtio channel of a VM.
func Path(dir, vmUUID, name string) string {
	return filepath.Join(dir, vmUUID+"."+name)
}

// PathFromDomain looks up the unix socket bound for the named virtio channel in a domain
// definition.
func PathFromDomain(domain *libvirtxml.Domain, name string) (string, bool) {
	if domain == nil || domain.Devices == nil {
		return "", false
	}

	for _, ch := range domain.Devices.Channels {
		if ch.Target == nil || ch.Target.VirtIO == nil || ch.Target.VirtIO.Name != name {
			continue
		}
		if ch.Source == nil || ch.Source.UNIX == nil || ch.Source.UNIX.Path == "" {
			continue
		}
		return ch.Source.UNIX.Path, true
	}
	return "", false
}
