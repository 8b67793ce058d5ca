// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package hypervisor_test

import (
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/ironcore-dev/engine-setup/internal/channel"
	"github.com/ironcore-dev/engine-setup/internal/controlplane"
	"github.com/ironcore-dev/engine-setup/internal/controlplane/hypervisor"
	mockdialer "github.com/ironcore-dev/engine-setup/internal/mocks/libvirtdialer"
	"github.com/ironcore-dev/engine-setup/internal/waiter"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		id   libvirt.UUID
		vmID string
	)

	BeforeEach(func() {
		id = mockdialer.NewUUID()
		vmID = uuid.UUID(id).String()
		DeferCleanup(dialer.RemoveDomain, id)
	})

	Describe("GetVMStats", func() {
		DescribeTable("should map the domain state",
			func(state libvirt.DomainState, status controlplane.VMStatus) {
				dialer.SetDomainState(id, state)

				stats, err := client.GetVMStats(ctx, vmID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats).To(ConsistOf(controlplane.VMStats{ID: vmID, Status: status}))
			},
			Entry("running", libvirt.DomainRunning, controlplane.VMStatusUp),
			Entry("paused", libvirt.DomainPaused, controlplane.VMStatusPaused),
			Entry("shutting down", libvirt.DomainShutdown, controlplane.VMStatusPoweringDown),
			Entry("shut off", libvirt.DomainShutoff, controlplane.VMStatusDown),
			Entry("crashed", libvirt.DomainCrashed, controlplane.VMStatusDown),
		)

		It("should report an unknown domain as no such vm", func() {
			_, err := client.GetVMStats(ctx, vmID)
			Expect(controlplane.IsNoSuchVM(err)).To(BeTrue())

			var rErr *controlplane.RemoteCallError
			Expect(err).To(BeAssignableToTypeOf(rErr))
			Expect(err.(*controlplane.RemoteCallError).Method).To(Equal(hypervisor.MethodGetVMStats))
		})

		It("should reject a malformed vm id without calling libvirt", func() {
			calls := dialer.Calls(mockdialer.ProcDomainGetState)
			_, err := client.GetVMStats(ctx, "not-a-uuid")
			Expect(controlplane.IsRemoteCallCode(err, controlplane.CodeInvalidArgument)).To(BeTrue())
			Expect(controlplane.IsNoSuchVM(err)).To(BeFalse())
			Expect(dialer.Calls(mockdialer.ProcDomainGetState)).To(Equal(calls))
		})

		It("should not treat a malformed vm id as a destroyed vm", func() {
			destroyed, err := waiter.WaitForVMDown(ctx, client, "not-a-uuid", waiter.VMDownOptions{Interval: time.Millisecond})
			Expect(controlplane.IsRemoteCallCode(err, controlplane.CodeInvalidArgument)).To(BeTrue())
			Expect(destroyed).To(BeFalse())
		})
	})

	Describe("DestroyVM", func() {
		It("should shut off a running domain", func() {
			dialer.SetDomainState(id, libvirt.DomainRunning)

			Expect(client.DestroyVM(ctx, vmID)).To(Succeed())
			Expect(dialer.DomainState(id)).To(Equal(libvirt.DomainShutoff))
		})

		It("should ignore a domain that is already gone", func() {
			Expect(client.DestroyVM(ctx, vmID)).To(Succeed())
		})

		It("should ignore a domain that is not running", func() {
			dialer.SetDomainState(id, libvirt.DomainShutoff)
			Expect(client.DestroyVM(ctx, vmID)).To(Succeed())
		})
	})

	Describe("CreateVM", func() {
		It("should start a shut off domain", func() {
			dialer.SetDomainState(id, libvirt.DomainShutoff)

			Expect(client.CreateVM(ctx, vmID)).To(Succeed())
			Expect(dialer.DomainState(id)).To(Equal(libvirt.DomainRunning))

			stats, err := client.GetVMStats(ctx, vmID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats[0].Status).To(Equal(controlplane.VMStatusUp))
		})

		It("should fail for an unknown domain", func() {
			err := client.CreateVM(ctx, vmID)
			Expect(controlplane.IsNoSuchVM(err)).To(BeTrue())
		})

		It("should report a hypervisor error for a running domain", func() {
			dialer.SetDomainState(id, libvirt.DomainRunning)

			err := client.CreateVM(ctx, vmID)
			Expect(controlplane.IsRemoteCallCode(err, controlplane.CodeHypervisorError)).To(BeTrue())
		})
	})

	Describe("GetTaskInfo", func() {
		It("should describe a task of an existing domain", func() {
			dialer.SetDomainState(id, libvirt.DomainRunning)

			info, err := client.GetTaskInfo(ctx, vmID)
			Expect(err).NotTo(HaveOccurred())
			Expect(info).To(Equal(&controlplane.TaskInfo{ID: vmID, Verb: hypervisor.TaskVerb}))
		})
	})

	Describe("ChannelPath", func() {
		It("should find the guest channel socket in the domain definition", func() {
			dialer.SetDomain(id, libvirt.DomainRunning, mockdialer.ChannelDomainXML(id, channel.DefaultName, "/run/he/setup.sock"))

			path, ok, err := client.ChannelPath(ctx, vmID, channel.DefaultName)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(path).To(Equal("/run/he/setup.sock"))
		})

		It("should report a missing channel", func() {
			dialer.SetDomain(id, libvirt.DomainRunning, mockdialer.ChannelDomainXML(id, "org.qemu.guest_agent.0", "/run/qga.sock"))

			_, ok, err := client.ChannelPath(ctx, vmID, channel.DefaultName)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})
