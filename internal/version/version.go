// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"github.com/blang/semver/v4"
)

const Name = "engine-setup"

// Set at build time via -ldflags.
var (
	Version string
	Commit  string
)

// Get returns the semantic version of the build. Development builds report 0.0.0, with the
// commit as build metadata if known.
func Get() string {
	if Version != "" {
		if v, err := semver.ParseTolerant(Version); err == nil {
			return v.String()
		}
		return Version
	}

	v := semver.Version{}
	if Commit != "" {
		if build, err := semver.NewBuildVersion(Commit); err == nil {
			v.Build = []string{build}
		}
	}
	return v.String()
}
