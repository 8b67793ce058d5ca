// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package osutils_test

import (
	"net"
	"os"
	"path/filepath"

	"github.com/ironcore-dev/engine-setup/internal/osutils"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OS utils", func() {
	var dir string

	BeforeEach(func() {
		// unix socket paths are short, keep the directory out of the test temp root
		var err error
		dir, err = os.MkdirTemp("", "os")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
	})

	It("should report a regular file", func() {
		file := filepath.Join(dir, "answers.yaml")
		Expect(os.WriteFile(file, nil, 0o600)).To(Succeed())

		Expect(osutils.RegularFileExists(file)).To(BeTrue())
		_, err := osutils.SocketExists(file)
		Expect(err).To(MatchError(ContainSubstring("no socket at")))
	})

	It("should report missing files without error", func() {
		Expect(osutils.RegularFileExists(filepath.Join(dir, "missing"))).To(BeFalse())
		Expect(osutils.SocketExists(filepath.Join(dir, "missing"))).To(BeFalse())
	})

	It("should report a socket", func() {
		path := filepath.Join(dir, "sock")
		l, err := net.Listen("unix", path)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(l.Close)

		Expect(osutils.SocketExists(path)).To(BeTrue())
		_, err = osutils.RegularFileExists(path)
		Expect(err).To(MatchError(ContainSubstring("no regular file at")))
	})

	It("should reject a directory as regular file", func() {
		_, err := osutils.RegularFileExists(dir)
		Expect(err).To(HaveOccurred())
	})
})
