// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package manualsetup

import "fmt"

type State int

const (
	StateAwaitingOSInstall State = iota
	StateAwaitingEngineReady
	StateProceed
	StateAborted
	StateDestroyedAndAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingOSInstall:
		return "AwaitingOSInstall"
	case StateAwaitingEngineReady:
		return "AwaitingEngineReady"
	case StateProceed:
		return "Proceed"
	case StateAborted:
		return "Aborted"
	case StateDestroyedAndAborted:
		return "DestroyedAndAborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateProceed || s == StateAborted || s == StateDestroyedAndAborted
}

// Outcome is what the deployment does after the dispatcher reached a terminal state.
type Outcome int

const (
	OutcomeProceed Outcome = iota
	OutcomeAbort
	OutcomeAbortAndDestroy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProceed:
		return "Proceed"
	case OutcomeAbort:
		return "Abort"
	case OutcomeAbortAndDestroy:
		return "AbortAndDestroy"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) Aborted() bool {
	return o != OutcomeProceed
}

func outcomeOf(s State) Outcome {
	switch s {
	case StateAborted:
		return OutcomeAbort
	case StateDestroyedAndAborted:
		return OutcomeAbortAndDestroy
	default:
		return OutcomeProceed
	}
}

type Choice int

const (
	ChoiceContinue Choice = iota + 1
	ChoiceRestartVM
	ChoiceAbort
	ChoiceDestroyAndAbort
)

type MenuItem struct {
	Choice Choice
	Label  string
}

// Menu lists the choices offered in state, in menu order.
func Menu(state State) []MenuItem {
	continueLabel := "Continue setup - OS installation is complete"
	if state == StateAwaitingEngineReady {
		continueLabel = "Continue setup - engine installation is complete"
	}
	return []MenuItem{
		{Choice: ChoiceContinue, Label: continueLabel},
		{Choice: ChoiceRestartVM, Label: "Power off and restart the VM"},
		{Choice: ChoiceAbort, Label: "Abort setup"},
		{Choice: ChoiceDestroyAndAbort, Label: "Destroy VM and abort setup"},
	}
}

// Question is the prompt text shown above the menu.
func Question(state State) string {
	if state == StateAwaitingEngineReady {
		return "The VM has been started. Install the engine on the VM, then choose how to continue"
	}
	return "The VM has been started. Install the OS and shut down or reboot it, then choose how to continue"
}
