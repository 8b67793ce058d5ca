// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ironcore-dev/engine-setup/internal/appliance"
	"github.com/ironcore-dev/engine-setup/internal/channel"
	"github.com/ironcore-dev/engine-setup/internal/controlplane/hypervisor"
	"github.com/ironcore-dev/engine-setup/internal/manualsetup"
	"github.com/ironcore-dev/engine-setup/internal/version"
	"github.com/ironcore-dev/engine-setup/internal/waiter"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
)

var ErrEngineDown = errors.New("engine is not up")

const (
	OperationWaitAppliance     = "wait_appliance"
	OperationWaitTask          = "wait_task"
	OperationWaitVMDown        = "wait_vm_down"
	OperationWaitStorageDomain = "wait_storage_domain"
	OperationCheckHealth       = "check_health"
	OperationManualSetup       = "manual_setup"
)

func waitApplianceCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait-appliance",
		Short: "Follow the engine setup inside the appliance until the engine is up",
		Args:  cobra.NoArgs,
	}

	fs := cmd.Flags()
	fs.DurationVar(&opts.Env.Appliance.SetupTimeout.Duration, "setup-timeout", 0, "Longest silence tolerated on the appliance channel (default 10m).")
	fs.DurationVar(&opts.Env.Appliance.EngineUpTimeout.Duration, "engine-up-timeout", 0, "Time the engine has to answer its health check after setup (default 10m).")
	fs.DurationVar(&opts.Env.Appliance.HealthInterval.Duration, "health-interval", 0, "Interval between two engine health checks (default 5s).")

	cmd.RunE = runE(opts, OperationWaitAppliance, waitAppliance)
	return cmd
}

func waitAppliance(ctx context.Context, s *session) error {
	log := ctrl.LoggerFrom(ctx)
	env := s.env
	if err := errors.Join(env.RequireVMUUID(), env.RequireEngineFQDN()); err != nil {
		return err
	}

	path := env.ChannelPath()
	if env.Channel.Path == "" {
		err := s.withHypervisor(ctx, func(client *hypervisor.Client) error {
			discovered, ok, err := client.ChannelPath(ctx, env.VMUUID, env.Channel.Name)
			if err != nil {
				return err
			}
			if ok {
				path = discovered
			}
			return nil
		})
		if err != nil {
			log.Info("Could not look up the channel in the domain definition, using the default path", "Path", path, "Error", err.Error())
		}
	}

	connector := channel.NewConnector(log.WithName("channel"), path, channel.ConnectorOptions{
		Retries: env.Channel.Retries,
		Delay:   env.Channel.Delay.Duration,
	})
	monitor, err := appliance.NewMonitor(log.WithName("appliance"), connector, s.newPoller(log), appliance.MonitorOptions{
		EngineFQDN:      env.EngineFQDN,
		ReadTimeout:     env.Channel.ReadTimeout.Duration,
		SetupTimeout:    env.Appliance.SetupTimeout.Duration,
		EngineUpTimeout: env.Appliance.EngineUpTimeout.Duration,
		HealthInterval:  env.Appliance.HealthInterval.Duration,
	})
	if err != nil {
		return err
	}

	result, err := monitor.WaitForEngineSetup(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.out, "%s after %s\n", result.Marker, result.Elapsed.Round(time.Second))
	return err
}

func waitTaskCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait-task <task-id>",
		Short: "Wait for a hypervisor task to finish",
		Args:  cobra.ExactArgs(1),
	}

	fs := cmd.Flags()
	fs.DurationVar(&opts.Env.Waits.TaskInterval.Duration, "interval", 0, "Interval between two status polls (default 1s).")
	fs.DurationVar(&opts.Env.Waits.TaskTimeout.Duration, "timeout", 0, "Time the task has to finish (default 10m).")
	fs.DurationVar(&opts.Env.Waits.TaskProgress.Duration, "progress-interval", 0, "Interval between two progress messages (default 10s).")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		taskID := args[0]
		return runE(opts, OperationWaitTask, func(ctx context.Context, s *session) error {
			return s.withHypervisor(ctx, func(client *hypervisor.Client) error {
				return waiter.WaitForTask(ctx, client, taskID, waiter.TaskOptions{
					Interval:         s.env.Waits.TaskInterval.Duration,
					Timeout:          s.env.Waits.TaskTimeout.Duration,
					ProgressInterval: s.env.Waits.TaskProgress.Duration,
				})
			})
		})(cmd, args)
	}
	return cmd
}

func waitVMDownCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait-vm-down",
		Short: "Wait for the engine VM to be down",
		Args:  cobra.NoArgs,
	}

	fs := cmd.Flags()
	fs.DurationVar(&opts.Env.Waits.VMInterval.Duration, "interval", 0, "Interval between two status polls (default 5s).")
	fs.DurationVar(&opts.Env.Waits.VMTimeout.Duration, "timeout", 0, "Time the VM has to go down. Zero waits forever.")

	cmd.RunE = runE(opts, OperationWaitVMDown, func(ctx context.Context, s *session) error {
		if err := s.env.RequireVMUUID(); err != nil {
			return err
		}
		return s.withHypervisor(ctx, func(client *hypervisor.Client) error {
			destroyed, err := waiter.WaitForVMDown(ctx, client, s.env.VMUUID, waiter.VMDownOptions{
				Interval: s.env.Waits.VMInterval.Duration,
				Timeout:  s.env.Waits.VMTimeout.Duration,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(s.out, "vm %s is down (destroyed: %t)\n", s.env.VMUUID, destroyed)
			return err
		})
	})
	return cmd
}

func waitStorageDomainCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait-storage-domain",
		Short: "Wait for the host to acquire the hosted engine storage domain",
		Args:  cobra.NoArgs,
	}

	fs := cmd.Flags()
	fs.DurationVar(&opts.Env.Waits.DomainInterval.Duration, "interval", 0, "Interval between two host stats polls (default 5s).")
	fs.DurationVar(&opts.Env.Waits.DomainTimeout.Duration, "timeout", 0, "Time the host has to acquire the domain. Zero waits forever.")

	cmd.RunE = runE(opts, OperationWaitStorageDomain, func(ctx context.Context, s *session) error {
		if err := s.env.RequireStorageDomainUUID(); err != nil {
			return err
		}
		return s.withHypervisor(ctx, func(client *hypervisor.Client) error {
			return waiter.WaitForDomainAcquired(ctx, client, s.env.StorageDomainUUID, waiter.DomainAcquiredOptions{
				Interval: s.env.Waits.DomainInterval.Duration,
				Timeout:  s.env.Waits.DomainTimeout.Duration,
			})
		})
	})
	return cmd
}

func checkHealthCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-health",
		Short: "Check once whether the engine is up",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = runE(opts, OperationCheckHealth, func(ctx context.Context, s *session) error {
		if err := s.env.RequireEngineFQDN(); err != nil {
			return err
		}

		verdict := s.newPoller(ctrl.LoggerFrom(ctx)).Check(ctx, s.env.EngineFQDN)
		if !verdict.Up {
			return fmt.Errorf("%w: %s", ErrEngineDown, s.env.EngineFQDN)
		}
		_, err := fmt.Fprintf(s.out, "engine %s is up\n", s.env.EngineFQDN)
		return err
	})
	return cmd
}

func manualSetupCommand(opts *Options) *cobra.Command {
	stage := StageOption(StageOSInstall)

	cmd := &cobra.Command{
		Use:   "manual-setup",
		Short: "Guide through a manual engine installation on the VM",
		Args:  cobra.NoArgs,
	}

	fs := cmd.Flags()
	fs.Var(&stage, "stage", fmt.Sprintf("Stage the manual setup starts in. Available: %v", stageOptionAvailable()))
	fs.DurationVar(&opts.Env.Waits.VMInterval.Duration, "vm-interval", 0, "Interval between two status polls while waiting for the VM to be down (default 5s).")

	cmd.RunE = runE(opts, OperationManualSetup, func(ctx context.Context, s *session) error {
		if err := s.env.RequireVMUUID(); err != nil {
			return err
		}
		log := ctrl.LoggerFrom(ctx)

		return s.withHypervisor(ctx, func(client *hypervisor.Client) error {
			dispatcher, err := manualsetup.NewDispatcher(
				log.WithName("manual-setup"),
				client,
				client,
				s.newPoller(log),
				manualsetup.NewPrompter(s.in, s.out),
				stage.State(),
				manualsetup.Options{
					VMID:       s.env.VMUUID,
					EngineFQDN: s.env.EngineFQDN,
					VMDown: waiter.VMDownOptions{
						Interval: s.env.Waits.VMInterval.Duration,
						Timeout:  s.env.Waits.VMTimeout.Duration,
					},
				},
			)
			if err != nil {
				return err
			}

			outcome, err := dispatcher.Run(ctx)
			if err != nil {
				return err
			}
			if outcome.Aborted() {
				return fmt.Errorf("%w: %s", ErrUserAborted, outcome)
			}
			return nil
		})
	})
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Name, version.Get())
			return err
		},
	}
}
