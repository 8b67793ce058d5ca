// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"slices"

	"github.com/ironcore-dev/engine-setup/internal/manualsetup"
)

const (
	StageOSInstall   = "os-install"
	StageEngineReady = "engine-ready"
)

// StageOption selects where the manual setup starts.
type StageOption string

func (s *StageOption) String() string {
	return string(*s)
}

func (s *StageOption) Set(value string) error {
	if s == nil {
		return fmt.Errorf("invalid pointer to object type %s", s.Type())
	}

	if !slices.Contains(stageOptionAvailable(), value) {
		return fmt.Errorf("unsupported stage %s, available: %v", value, stageOptionAvailable())
	}
	*s = StageOption(value)
	return nil
}

func (s *StageOption) Type() string {
	return "stage"
}

func (s *StageOption) State() manualsetup.State {
	if s != nil && *s == StageEngineReady {
		return manualsetup.StateAwaitingEngineReady
	}
	return manualsetup.StateAwaitingOSInstall
}

func stageOptionAvailable() []string {
	return []string{StageOSInstall, StageEngineReady}
}
