// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/google/uuid"
	"github.com/ironcore-dev/engine-setup/internal/osutils"
	ctrl "sigs.k8s.io/controller-runtime"
)

const (
	defaultSocket = "/var/run/libvirt/libvirt-sock"
)

var (
	log = ctrl.Log.WithName("libvirtutils")
)

func wellKnownSocketPaths() []string {
	paths := []string{defaultSocket}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(homeDir, ".cache", "libvirt", "libvirt-sock"))
	}

	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		paths = append(paths, filepath.Join("/", "opt", "homebrew", "var", "run", "libvirt", "libvirt-sock"))
	}

	return paths
}

func GetDialer(socket, address string) (socket.Dialer, error) {
	if socket != "" {
		log.V(1).Info("Using explicit local socket", "Socket", socket)
		return dialers.NewLocal(dialers.WithSocket(socket), dialers.WithLocalTimeout(1*time.Second)), nil
	}
	if address != "" {
		log.V(1).Info("Using explicit remote socket", "Address", address)
		return dialers.NewRemote(address), nil
	}

	wellKnownSocketPaths := wellKnownSocketPaths()
	log.V(1).Info("Probing well known socket paths", "WellKnownSocketPaths", wellKnownSocketPaths)
	for _, wellKnownSocketPath := range wellKnownSocketPaths {
		ok, err := osutils.SocketExists(wellKnownSocketPath)
		if err != nil {
			log.Error(err, "Error checking socket path", "SocketPath", wellKnownSocketPath)
			continue
		}
		if ok {
			log.V(1).Info("Determined socket", "Socket", wellKnownSocketPath)
			return dialers.NewLocal(dialers.WithSocket(wellKnownSocketPath)), nil
		}
	}
	return nil, fmt.Errorf("could not determine libvirt dialer to use")
}

func wellKnownConnectURIs() []libvirt.ConnectURI {
	var uris []libvirt.ConnectURI
	if defaultURI := os.Getenv("LIBVIRT_DEFAULT_URI"); defaultURI != "" {
		uris = append(uris, libvirt.ConnectURI(defaultURI))
	}

	uris = append(uris, libvirt.QEMUSystem)
	return uris
}

var (
	expectedConnectErrorMessageRegex = regexp.MustCompile(`\Qinternal error: unexpected qemu URI path\E|\Qno polkit agent available\E`)
)

func Connect(lv *libvirt.Libvirt, uri string) error {
	if uri != "" {
		log.V(1).Info("Connecting to explicit uri", "URI", uri)
		return lv.ConnectToURI(libvirt.ConnectURI(uri))
	}

	wellKnownConnectURIs := wellKnownConnectURIs()
	log.V(1).Info("Probing well known connect URIs", "WellKnownConnectURIs", wellKnownConnectURIs)
	for _, wellKnownConnectURI := range wellKnownConnectURIs {
		if err := lv.ConnectToURI(wellKnownConnectURI); err != nil {
			var lvErr libvirt.Error
			if !errors.As(err, &lvErr) {
				return err
			}

			if !expectedConnectErrorMessageRegex.MatchString(lvErr.Message) {
				return err
			}
			continue
		}
		log.V(1).Info("Determined connect uri", "URI", wellKnownConnectURI)
		return nil
	}
	return fmt.Errorf("could not determine connect uri")
}

// Options select how the hypervisor is reached. Empty fields are probed from well known locations.
type Options struct {
	Socket  string
	Address string
	URI     string
}

func GetLibvirt(opts Options) (*libvirt.Libvirt, error) {
	dialer, err := GetDialer(opts.Socket, opts.Address)
	if err != nil {
		return nil, err
	}

	lv := libvirt.NewWithDialer(dialer)
	if err := Connect(lv, opts.URI); err != nil {
		return nil, fmt.Errorf("error connecting to libvirt: %w", err)
	}
	return lv, nil
}

func IsErrorCode(err error, codes ...libvirt.ErrorNumber) bool {
	var lErr libvirt.Error
	if !errors.As(err, &lErr) {
		return false
	}

	for _, code := range codes {
		if lErr.Code == uint32(code) {
			return true
		}
	}
	return false
}

func IgnoreErrorCode(err error, codes ...libvirt.ErrorNumber) error {
	if IsErrorCode(err, codes...) {
		return nil
	}
	return err
}

// ParseUUID converts the textual VM or pool id into the wire representation.
func ParseUUID(uid string) (libvirt.UUID, error) {
	u, err := uuid.Parse(uid)
	if err != nil {
		return libvirt.UUID{}, fmt.Errorf("error parsing uuid %q: %w", uid, err)
	}

	var lUUID libvirt.UUID
	copy(lUUID[:], u[:])
	return lUUID, nil
}

func UUIDToString(id libvirt.UUID) string {
	return uuid.UUID(id).String()
}

func IsConnected(lv *libvirt.Libvirt) error {
	if lv == nil || !lv.IsConnected() {
		return fmt.Errorf("not connected to libvirt")
	}
	return nil
}
