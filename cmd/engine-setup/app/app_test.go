// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironcore-dev/engine-setup/cmd/engine-setup/app"
	"github.com/ironcore-dev/engine-setup/internal/healthcheck"
	"github.com/ironcore-dev/engine-setup/internal/manualsetup"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func execute(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := app.Command()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

var _ = Describe("Command", func() {
	It("should register every operation", func() {
		var names []string
		for _, c := range app.Command().Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements(
			"wait-appliance",
			"wait-task",
			"wait-vm-down",
			"wait-storage-domain",
			"check-health",
			"manual-setup",
			"version",
		))
	})

	It("should print the version", func(ctx SpecContext) {
		out, err := execute(ctx, "version")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("engine-setup "))
	})

	It("should require a task id", func(ctx SpecContext) {
		_, err := execute(ctx, "wait-task")
		Expect(err).To(HaveOccurred())
	})

	It("should reject an invalid stage", func(ctx SpecContext) {
		_, err := execute(ctx, "manual-setup", "--stage", "reboot")
		Expect(err).To(MatchError(ContainSubstring("unsupported stage reboot")))
	})

	It("should reject an invalid vm uuid before doing anything", func(ctx SpecContext) {
		_, err := execute(ctx, "wait-vm-down", "--vm-uuid", "not-a-uuid")
		Expect(err).To(MatchError(ContainSubstring("invalid vm uuid")))
	})

	It("should require the storage domain uuid", func(ctx SpecContext) {
		_, err := execute(ctx, "wait-storage-domain")
		Expect(err).To(MatchError(ContainSubstring("storage domain uuid")))
	})

	It("should fail on a missing answer file", func(ctx SpecContext) {
		_, err := execute(ctx, "check-health", "--config", filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(MatchError(ContainSubstring("does not exist")))
	})

	Context("check-health", func() {
		var (
			up     bool
			engine *httptest.Server
			fqdn   string
		)

		BeforeEach(func() {
			up = true
			engine = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != healthcheck.DefaultPath {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				if up {
					_, _ = w.Write([]byte("DB Up!Welcome to Health Status!"))
					return
				}
				_, _ = w.Write([]byte("DB Down!"))
			}))
			DeferCleanup(engine.Close)
			fqdn = strings.TrimPrefix(engine.URL, "http://")
		})

		It("should report an engine that is up", func(ctx SpecContext) {
			out, err := execute(ctx, "check-health", "--engine-fqdn", fqdn)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("is up"))
		})

		It("should fail for an engine that is down", func(ctx SpecContext) {
			up = false
			_, err := execute(ctx, "check-health", "--engine-fqdn", fqdn)
			Expect(err).To(MatchError(app.ErrEngineDown))
		})

		It("should take the engine fqdn from the answer file", func(ctx SpecContext) {
			answers := filepath.Join(GinkgoT().TempDir(), "answers.yaml")
			Expect(os.WriteFile(answers, []byte("engineFQDN: \""+fqdn+"\"\n"), 0o600)).To(Succeed())

			out, err := execute(ctx, "check-health", "--config", answers)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(fqdn))
		})
	})
})

var _ = Describe("StageOption", func() {
	It("should default to the os install stage", func() {
		var stage app.StageOption
		Expect(stage.State()).To(Equal(manualsetup.StateAwaitingOSInstall))
	})

	It("should map the engine ready stage", func() {
		var stage app.StageOption
		Expect(stage.Set(app.StageEngineReady)).To(Succeed())
		Expect(stage.String()).To(Equal(app.StageEngineReady))
		Expect(stage.State()).To(Equal(manualsetup.StateAwaitingEngineReady))
	})

	It("should reject unknown stages", func() {
		var stage app.StageOption
		Expect(stage.Set("reboot")).NotTo(Succeed())
		Expect(stage.Type()).To(Equal("stage"))
	})
})
