// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the deployment environment shared by all waits.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/ironcore-dev/engine-setup/internal/channel"
	"github.com/ironcore-dev/engine-setup/internal/osutils"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/yaml"
)

type ChannelConfig struct {
	Dir  string `json:"dir,omitempty" default:"/var/lib/libvirt/qemu/channels"`
	Name string `json:"name,omitempty" default:"org.ovirt.hosted-engine-setup.0"`
	// Path overrides the socket path derived from Dir, Name and the VM UUID.
	Path        string          `json:"path,omitempty"`
	Retries     int             `json:"retries,omitempty" default:"5"`
	Delay       metav1.Duration `json:"delay,omitempty"`
	ReadTimeout metav1.Duration `json:"readTimeout,omitempty"`
}

type ApplianceConfig struct {
	// SetupTimeout is the longest silence tolerated on the channel while the engine is set up.
	SetupTimeout    metav1.Duration `json:"setupTimeout,omitempty"`
	EngineUpTimeout metav1.Duration `json:"engineUpTimeout,omitempty"`
	HealthInterval  metav1.Duration `json:"healthInterval,omitempty"`
}

type WaitsConfig struct {
	TaskInterval   metav1.Duration `json:"taskInterval,omitempty"`
	TaskTimeout    metav1.Duration `json:"taskTimeout,omitempty"`
	TaskProgress   metav1.Duration `json:"taskProgress,omitempty"`
	VMInterval     metav1.Duration `json:"vmInterval,omitempty"`
	VMTimeout      metav1.Duration `json:"vmTimeout,omitempty"`
	DomainInterval metav1.Duration `json:"domainInterval,omitempty"`
	DomainTimeout  metav1.Duration `json:"domainTimeout,omitempty"`
}

type LibvirtConfig struct {
	Socket  string `json:"socket,omitempty"`
	Address string `json:"address,omitempty"`
	URI     string `json:"uri,omitempty"`
}

type HealthConfig struct {
	Timeout metav1.Duration `json:"timeout,omitempty"`
}

// Environment is the answer file of a deployment. Zero durations mean "use the default";
// VMTimeout and DomainTimeout stay zero, which keeps those waits unbounded.
type Environment struct {
	VMUUID            string          `json:"vmUUID,omitempty"`
	EngineFQDN        string          `json:"engineFQDN,omitempty"`
	StorageDomainUUID string          `json:"storageDomainUUID,omitempty"`
	Channel           ChannelConfig   `json:"channel,omitempty"`
	Appliance         ApplianceConfig `json:"appliance,omitempty"`
	Health            HealthConfig    `json:"health,omitempty"`
	Waits             WaitsConfig     `json:"waits,omitempty"`
	Libvirt           LibvirtConfig   `json:"libvirt,omitempty"`
}

func setDurationDefault(d *metav1.Duration, value time.Duration) {
	if d.Duration == 0 {
		d.Duration = value
	}
}

// SetDefaults fills in the durations, which cannot be expressed as default tags.
func (e *Environment) SetDefaults() {
	setDurationDefault(&e.Channel.Delay, 5*time.Second)
	setDurationDefault(&e.Channel.ReadTimeout, 1*time.Second)
	setDurationDefault(&e.Appliance.SetupTimeout, 600*time.Second)
	setDurationDefault(&e.Appliance.EngineUpTimeout, 600*time.Second)
	setDurationDefault(&e.Appliance.HealthInterval, 5*time.Second)
	setDurationDefault(&e.Health.Timeout, 20*time.Second)
	setDurationDefault(&e.Waits.TaskInterval, 1*time.Second)
	setDurationDefault(&e.Waits.TaskTimeout, 600*time.Second)
	setDurationDefault(&e.Waits.TaskProgress, 10*time.Second)
	setDurationDefault(&e.Waits.VMInterval, 5*time.Second)
	setDurationDefault(&e.Waits.DomainInterval, 5*time.Second)
}

// Load reads the answer file at path, if any, lets non-zero fields of overrides win and
// applies the defaults. The result is not validated.
func Load(path string, overrides *Environment) (*Environment, error) {
	env := &Environment{}
	if path != "" {
		if err := decodeFile(path, env); err != nil {
			return nil, err
		}
	}

	if overrides != nil {
		mergeNonZero(reflect.ValueOf(env).Elem(), reflect.ValueOf(overrides).Elem())
	}

	if err := defaults.Set(env); err != nil {
		return nil, fmt.Errorf("error setting defaults: %w", err)
	}
	return env, nil
}

func decodeFile(path string, env *Environment) error {
	ok, err := osutils.RegularFileExists(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("answer file %s does not exist", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening answer file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := yaml.NewYAMLOrJSONDecoder(f, 4096).Decode(env); err != nil {
		return fmt.Errorf("error decoding answer file %s: %w", path, err)
	}
	return nil
}

func mergeNonZero(dst, src reflect.Value) {
	for i := range src.NumField() {
		s, d := src.Field(i), dst.Field(i)
		if s.Kind() == reflect.Struct && s.Type() != reflect.TypeOf(metav1.Duration{}) {
			mergeNonZero(d, s)
			continue
		}
		if !s.IsZero() {
			d.Set(s)
		}
	}
}

// Validate checks the format of everything set. Which fields are required depends on the operation.
func (e *Environment) Validate() error {
	var errs []error
	if e.VMUUID != "" {
		if _, err := uuid.Parse(e.VMUUID); err != nil {
			errs = append(errs, fmt.Errorf("invalid vm uuid %q: %w", e.VMUUID, err))
		}
	}
	if e.StorageDomainUUID != "" {
		if _, err := uuid.Parse(e.StorageDomainUUID); err != nil {
			errs = append(errs, fmt.Errorf("invalid storage domain uuid %q: %w", e.StorageDomainUUID, err))
		}
	}
	if e.Channel.Retries <= 0 {
		errs = append(errs, fmt.Errorf("channel retries must be positive, got %d", e.Channel.Retries))
	}
	for name, d := range map[string]metav1.Duration{
		"waits.vmTimeout":     e.Waits.VMTimeout,
		"waits.domainTimeout": e.Waits.DomainTimeout,
	} {
		if d.Duration < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

func (e *Environment) RequireVMUUID() error {
	if e.VMUUID == "" {
		return fmt.Errorf("must specify vm uuid")
	}
	return nil
}

func (e *Environment) RequireEngineFQDN() error {
	if e.EngineFQDN == "" {
		return fmt.Errorf("must specify engine fqdn")
	}
	return nil
}

func (e *Environment) RequireStorageDomainUUID() error {
	if e.StorageDomainUUID == "" {
		return fmt.Errorf("must specify storage domain uuid")
	}
	return nil
}

// ChannelPath returns the host side socket of the appliance setup channel.
func (e *Environment) ChannelPath() string {
	if e.Channel.Path != "" {
		return e.Channel.Path
	}
	return channel.Path(e.Channel.Dir, e.VMUUID, e.Channel.Name)
}
