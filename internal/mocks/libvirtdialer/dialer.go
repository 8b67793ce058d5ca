// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package libvirtdialer serves a scripted libvirt daemon over an in-memory pipe.
package libvirtdialer

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"

	xdr "github.com/davecgh/go-xdr/xdr2"
	"github.com/digitalocean/go-libvirt"
)

const (
	ProcConnectOpen                           = 1
	ProcConnectClose                          = 2
	ProcDomainGetXMLDesc                      = 14
	ProcAuthList                              = 66
	ProcDomainCreateWithFlags                 = 196
	ProcDomainGetState                        = 212
	ProcDomainDestroyFlags                    = 234
	ProcConnectDomainEventCallbackRegisterAny = 316

	headerSize = 28
)

type domain struct {
	state libvirt.DomainState
	xml   string
}

type MockLibvirtDialer struct {
	mu           sync.Mutex
	disconnected chan struct{}
	domains      map[libvirt.UUID]*domain
	calls        map[uint32]int
}

func NewMockDialer() *MockLibvirtDialer {
	m := &MockLibvirtDialer{
		disconnected: make(chan struct{}),
		domains:      map[libvirt.UUID]*domain{},
		calls:        map[uint32]int{},
	}
	close(m.disconnected)
	return m
}

// SetDomain defines or replaces the domain with the given state and XML description.
func (m *MockLibvirtDialer) SetDomain(id libvirt.UUID, state libvirt.DomainState, xml string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[id] = &domain{state: state, xml: xml}
}

func (m *MockLibvirtDialer) SetDomainState(id libvirt.UUID, state libvirt.DomainState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.domains[id]; ok {
		d.state = state
		return
	}
	m.domains[id] = &domain{state: state}
}

func (m *MockLibvirtDialer) RemoveDomain(id libvirt.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.domains, id)
}

// DomainState returns libvirt.DomainNostate for unknown domains.
func (m *MockLibvirtDialer) DomainState(id libvirt.UUID) libvirt.DomainState {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[id]
	if !ok {
		return libvirt.DomainNostate
	}
	return d.state
}

// Calls returns how many requests for procedure were served.
func (m *MockLibvirtDialer) Calls(procedure uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[procedure]
}

func (m *MockLibvirtDialer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header[0:4])
		procedure := binary.BigEndian.Uint32(header[12:16])
		serial := binary.BigEndian.Uint32(header[20:24])

		var args []byte
		if length > headerSize {
			args = make([]byte, length-headerSize)
			if _, err := io.ReadFull(conn, args); err != nil {
				return
			}
		}

		if _, err := conn.Write(m.reply(m.handleRemote(procedure, args), serial)); err != nil {
			return
		}

		select {
		case <-m.disconnected:
			return
		default:
		}
	}
}

func (m *MockLibvirtDialer) reply(buf []byte, serial uint32) []byte {
	binary.BigEndian.PutUint32(buf[20:24], serial)
	return buf
}

func decodeDomain(args []byte) libvirt.Domain {
	var dom libvirt.Domain
	_, _ = xdr.NewDecoder(bytes.NewReader(args)).Decode(&dom)
	return dom
}

func (m *MockLibvirtDialer) handleRemote(procedure uint32, args []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[procedure]++

	switch procedure {
	case ProcConnectOpen, ProcConnectClose:
		return successReply(procedure)
	case ProcAuthList:
		return authListReply()
	case ProcConnectDomainEventCallbackRegisterAny:
		return uint32Reply(procedure, 1)
	case ProcDomainGetState:
		d, ok := m.domains[decodeDomain(args).UUID]
		if !ok {
			return errorReply(procedure, libvirt.ErrNoDomain, "Domain not found")
		}
		return domainStateReply(d.state)
	case ProcDomainDestroyFlags:
		d, ok := m.domains[decodeDomain(args).UUID]
		if !ok {
			return errorReply(procedure, libvirt.ErrNoDomain, "Domain not found")
		}
		if d.state == libvirt.DomainShutoff {
			return errorReply(procedure, libvirt.ErrOperationInvalid, "domain is not running")
		}
		d.state = libvirt.DomainShutoff
		return successReply(procedure)
	case ProcDomainCreateWithFlags:
		dom := decodeDomain(args)
		d, ok := m.domains[dom.UUID]
		if !ok {
			return errorReply(procedure, libvirt.ErrNoDomain, "Domain not found")
		}
		if d.state != libvirt.DomainShutoff {
			return errorReply(procedure, libvirt.ErrOperationInvalid, "domain is already running")
		}
		d.state = libvirt.DomainRunning
		return domainReply(procedure, libvirt.Domain{Name: dom.Name, UUID: dom.UUID, ID: 1})
	case ProcDomainGetXMLDesc:
		d, ok := m.domains[decodeDomain(args).UUID]
		if !ok {
			return errorReply(procedure, libvirt.ErrNoDomain, "Domain not found")
		}
		return stringReply(procedure, d.xml)
	default:
		return errorReply(procedure, libvirt.ErrInternalError, "unexpected procedure")
	}
}

func (m *MockLibvirtDialer) Close() error {
	select {
	case <-m.disconnected:
		return nil
	default:
		close(m.disconnected)
	}
	return nil
}

func (m *MockLibvirtDialer) Dial() (net.Conn, error) {
	serv, clnt := net.Pipe()
	m.disconnected = make(chan struct{})

	go func() {
		m.handle(serv)
	}()
	return clnt, nil
}
