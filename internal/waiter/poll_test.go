// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package waiter_test

import (
	"context"
	"time"

	"github.com/ironcore-dev/engine-setup/internal/controlplane"
	. "github.com/ironcore-dev/engine-setup/internal/waiter"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Poll", func() {
	It("should keep the condition error when the context is cancelled meanwhile", func(ctx SpecContext) {
		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		remoteErr := &controlplane.RemoteCallError{Method: "getVmStats", Code: controlplane.CodeHypervisorError, Message: "internal error"}

		timedOut, err := Poll(cancelCtx, "test", interval, 0, func(context.Context) (bool, error) {
			cancel()
			return false, remoteErr
		})
		Expect(timedOut).To(BeFalse())
		Expect(err).To(MatchError(remoteErr))
	})

	It("should return the cancellation when nothing failed", func(ctx SpecContext) {
		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		timedOut, err := Poll(cancelCtx, "test", interval, time.Minute, func(context.Context) (bool, error) {
			cancel()
			return false, nil
		})
		Expect(timedOut).To(BeFalse())
		Expect(err).To(MatchError(context.Canceled))
	})

	It("should report an elapsed timeout", func(ctx SpecContext) {
		timedOut, err := Poll(ctx, "test", interval, 20*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(timedOut).To(BeTrue())
	})
})
