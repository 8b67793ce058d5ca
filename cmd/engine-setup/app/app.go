// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	goflag "flag"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"github.com/ironcore-dev/engine-setup/internal/config"
	"github.com/ironcore-dev/engine-setup/internal/controlplane/hypervisor"
	"github.com/ironcore-dev/engine-setup/internal/healthcheck"
	libvirtutils "github.com/ironcore-dev/engine-setup/internal/libvirt/utils"
	"github.com/ironcore-dev/engine-setup/internal/metrics"
	"github.com/ironcore-dev/engine-setup/internal/status"
	"github.com/ironcore-dev/engine-setup/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// ErrUserAborted is returned when the user chose to abort the deployment.
var ErrUserAborted = errors.New("aborted by user")

type Options struct {
	ConfigFile string
	// Env holds values given on the command line. They take precedence over the answer file.
	Env    config.Environment
	Status status.ServerOptions
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", "", "Path to the answer file (YAML or JSON).")

	fs.StringVar(&o.Env.VMUUID, "vm-uuid", "", "UUID of the engine VM.")
	fs.StringVar(&o.Env.EngineFQDN, "engine-fqdn", "", "Fully qualified domain name of the engine.")
	fs.StringVar(&o.Env.StorageDomainUUID, "storage-domain-uuid", "", "UUID of the hosted engine storage domain.")

	fs.StringVar(&o.Env.Channel.Dir, "channel-dir", "", "Directory holding the guest channel sockets (default /var/lib/libvirt/qemu/channels).")
	fs.StringVar(&o.Env.Channel.Name, "channel-name", "", "Name of the appliance setup channel (default org.ovirt.hosted-engine-setup.0).")
	fs.StringVar(&o.Env.Channel.Path, "channel-path", "", "Path of the appliance setup channel socket. Overrides discovery.")
	fs.IntVar(&o.Env.Channel.Retries, "channel-retries", 0, "Number of attempts to connect to the appliance channel (default 5).")
	fs.DurationVar(&o.Env.Channel.Delay.Duration, "channel-delay", 0, "Delay between two channel connection attempts (default 5s).")
	fs.DurationVar(&o.Env.Channel.ReadTimeout.Duration, "channel-read-timeout", 0, "Timeout of a single channel read (default 1s).")

	fs.DurationVar(&o.Env.Health.Timeout.Duration, "health-timeout", 0, "Timeout of a single engine health request (default 20s).")

	fs.StringVar(&o.Env.Libvirt.Socket, "libvirt-socket", "", "Path to the libvirt socket to use.")
	fs.StringVar(&o.Env.Libvirt.Address, "libvirt-address", "", "Address of a RPC libvirt socket to connect to.")
	fs.StringVar(&o.Env.Libvirt.URI, "libvirt-uri", "", "URI to connect to inside the libvirt system.")

	fs.StringVar(&o.Status.Addr, "status-address", "", "Address to serve metrics and health on while waiting. If address isn't set, server is disabled.")
	fs.DurationVar(&o.Status.GracefulTimeout, "status-gracefultimeout", 2*time.Second, "Graceful timeout for shutdown status server.")
}

func Command() *cobra.Command {
	var (
		zapOpts = zap.Options{Development: true}
		opts    Options
	)

	cmd := &cobra.Command{
		Use:   "engine-setup",
		Short: "Wait for the steps of a self-hosted engine deployment",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := zap.New(zap.UseFlagOptions(&zapOpts))
			ctrl.SetLogger(logger)
			cmd.SetContext(ctrl.LoggerInto(cmd.Context(), ctrl.Log))
		},
	}

	goFlags := goflag.NewFlagSet("", 0)
	zapOpts.BindFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)

	opts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		waitApplianceCommand(&opts),
		waitTaskCommand(&opts),
		waitVMDownCommand(&opts),
		waitStorageDomainCommand(&opts),
		checkHealthCommand(&opts),
		manualSetupCommand(&opts),
		versionCommand(),
	)

	return cmd
}

type operationFunc func(ctx context.Context, s *session) error

// runE wraps an operation the way every subcommand runs it.
func runE(opts *Options, operation string, run operationFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		//flag parsing is done therefore we can silence the usage message
		cmd.SilenceUsage = true
		//error logging is done in the main
		cmd.SilenceErrors = true

		env, err := config.Load(opts.ConfigFile, &opts.Env)
		if err != nil {
			return err
		}
		if err := env.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		return Run(cmd.Context(), opts.Status, &session{env: env, out: cmd.OutOrStdout(), in: cmd.InOrStdin()}, operation, run)
	}
}

// Run executes the operation while the status server is up. The server stops with the operation.
func Run(ctx context.Context, statusOpts status.ServerOptions, s *session, operation string, run operationFunc) error {
	log := ctrl.LoggerFrom(ctx)
	setupLog := log.WithName("setup")

	handler := status.NewHandler(status.HandlerOptions{
		Log: log.WithName("status"),
		HealthCheck: healthcheck.HealthCheck{
			Check: s.checkConnection,
			Log:   log.WithName("health"),
		},
		Version: version.Get(),
	})

	g, ctx := errgroup.WithContext(ctx)
	opCtx, cancel := context.WithCancel(ctx)

	g.Go(func() error {
		if err := status.Run(opCtx, setupLog, handler, statusOpts); err != nil {
			setupLog.Error(err, "failed to start status server")
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()

		start := time.Now()
		opLog := log.WithValues("Operation", operation)
		opLog.V(1).Info("Starting operation")
		err := run(ctrl.LoggerInto(opCtx, opLog), s)
		metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, ErrUserAborted) {
			metrics.OperationErrors.WithLabelValues(operation).Inc()
		}
		return err
	})

	return g.Wait()
}

// session carries what an operation works with.
type session struct {
	env *config.Environment
	in  io.Reader
	out io.Writer

	libvirt atomic.Pointer[libvirt.Libvirt]
}

// checkConnection reports a lost hypervisor connection. Operations without one are always live.
func (s *session) checkConnection() error {
	lv := s.libvirt.Load()
	if lv == nil {
		return nil
	}
	return libvirtutils.IsConnected(lv)
}

// withHypervisor connects to libvirt for the duration of fn.
func (s *session) withHypervisor(ctx context.Context, fn func(client *hypervisor.Client) error) error {
	log := ctrl.LoggerFrom(ctx)

	lv, err := libvirtutils.GetLibvirt(libvirtutils.Options{
		Socket:  s.env.Libvirt.Socket,
		Address: s.env.Libvirt.Address,
		URI:     s.env.Libvirt.URI,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize libvirt: %w", err)
	}
	s.libvirt.Store(lv)
	defer func() {
		s.libvirt.Store(nil)
		if err := lv.ConnectClose(); err != nil {
			log.Error(err, "failed to close libvirt connection")
		}
	}()

	return fn(hypervisor.NewClient(lv))
}

func (s *session) newPoller(log logr.Logger) *healthcheck.Poller {
	return healthcheck.NewPoller(log.WithName("health"), healthcheck.PollerOptions{
		Timeout: s.env.Health.Timeout.Duration,
	})
}
