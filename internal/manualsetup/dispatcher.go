// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package manualsetup drives the interactive fallback used when the appliance cannot set up the engine itself.
package manualsetup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/controlplane"
	"github.com/ironcore-dev/engine-setup/internal/waiter"
)

var ErrInvalidChoice = errors.New("invalid choice")

// Prompter asks the user to pick one of the menu items and returns the raw answer.
type Prompter interface {
	Prompt(ctx context.Context, state State, menu []MenuItem) (string, error)
}

type HealthChecker interface {
	IsUp(ctx context.Context, hostname string) bool
}

type Options struct {
	VMID       string
	EngineFQDN string
	VMDown     waiter.VMDownOptions
}

type Dispatcher struct {
	log      logr.Logger
	client   controlplane.Client
	vms      controlplane.VMOperations
	health   HealthChecker
	prompter Prompter
	opts     Options

	state State
}

func NewDispatcher(
	log logr.Logger,
	client controlplane.Client,
	vms controlplane.VMOperations,
	health HealthChecker,
	prompter Prompter,
	initial State,
	opts Options,
) (*Dispatcher, error) {
	if initial.Terminal() {
		return nil, fmt.Errorf("cannot start in terminal state %s", initial)
	}
	if opts.VMID == "" {
		return nil, fmt.Errorf("must specify vm id")
	}
	if initial == StateAwaitingEngineReady && opts.EngineFQDN == "" {
		return nil, fmt.Errorf("must specify engine fqdn to wait for the engine")
	}

	return &Dispatcher{
		log:      log.WithValues("VMID", opts.VMID),
		client:   client,
		vms:      vms,
		health:   health,
		prompter: prompter,
		opts:     opts,
		state:    initial,
	}, nil
}

func (d *Dispatcher) State() State {
	return d.state
}

func ParseChoice(answer string) (Choice, error) {
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < int(ChoiceContinue) || n > int(ChoiceDestroyAndAbort) {
		return 0, fmt.Errorf("%w %q", ErrInvalidChoice, answer)
	}
	return Choice(n), nil
}

// Step prompts once and performs the resulting transition. An invalid answer keeps the state.
func (d *Dispatcher) Step(ctx context.Context) (State, error) {
	if d.state.Terminal() {
		return d.state, nil
	}

	answer, err := d.prompter.Prompt(ctx, d.state, Menu(d.state))
	if err != nil {
		return d.state, fmt.Errorf("error prompting for manual setup choice: %w", err)
	}

	choice, err := ParseChoice(answer)
	if err != nil {
		d.log.Error(err, "Please choose one of the listed options")
		return d.state, nil
	}

	if err := d.apply(ctx, choice); err != nil {
		return d.state, err
	}
	return d.state, nil
}

func (d *Dispatcher) apply(ctx context.Context, choice Choice) error {
	log := d.log.WithValues("State", d.state, "Choice", choice)

	switch choice {
	case ChoiceContinue:
		return d.proceed(ctx, log)
	case ChoiceRestartVM:
		log.Info("Restarting VM")
		if err := d.vms.DestroyVM(ctx, d.opts.VMID); err != nil {
			return fmt.Errorf("error destroying vm %s: %w", d.opts.VMID, err)
		}
		if err := d.vms.CreateVM(ctx, d.opts.VMID); err != nil {
			return fmt.Errorf("error creating vm %s: %w", d.opts.VMID, err)
		}
		return nil
	case ChoiceAbort:
		log.Info("Setup aborted by user")
		d.state = StateAborted
		return nil
	case ChoiceDestroyAndAbort:
		log.Info("Destroying VM and aborting setup")
		if err := d.vms.DestroyVM(ctx, d.opts.VMID); err != nil {
			return fmt.Errorf("error destroying vm %s: %w", d.opts.VMID, err)
		}
		d.state = StateDestroyedAndAborted
		return nil
	default:
		return fmt.Errorf("%w %d", ErrInvalidChoice, choice)
	}
}

func (d *Dispatcher) proceed(ctx context.Context, log logr.Logger) error {
	switch d.state {
	case StateAwaitingOSInstall:
		destroyed, err := waiter.WaitForVMDown(logr.NewContext(ctx, log), d.client, d.opts.VMID, d.opts.VMDown)
		if err != nil {
			return fmt.Errorf("error waiting for vm %s to be down: %w", d.opts.VMID, err)
		}
		if !destroyed {
			if err := d.vms.DestroyVM(ctx, d.opts.VMID); err != nil {
				return fmt.Errorf("error destroying vm %s: %w", d.opts.VMID, err)
			}
		}
		d.state = StateProceed
	case StateAwaitingEngineReady:
		if !d.health.IsUp(ctx, d.opts.EngineFQDN) {
			log.Info("Engine is still unreachable, make sure the engine is running", "EngineFQDN", d.opts.EngineFQDN)
			return nil
		}
		d.state = StateProceed
	}
	return nil
}

// Run steps until a terminal state is reached. There is no timeout; only ctx and the user end the loop.
func (d *Dispatcher) Run(ctx context.Context) (Outcome, error) {
	for !d.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return OutcomeAbort, err
		}
		if _, err := d.Step(ctx); err != nil {
			return OutcomeAbort, err
		}
	}

	outcome := outcomeOf(d.state)
	d.log.V(1).Info("Manual setup finished", "State", d.state, "Outcome", outcome)
	return outcome, nil
}
