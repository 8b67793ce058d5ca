// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package libvirtdialer

import (
	"bytes"
	"encoding/binary"

	xdr "github.com/davecgh/go-xdr/xdr2"
	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket"
	"github.com/google/uuid"
)

const (
	Program         = 0x20008086
	ProtocolVersion = 1
)

func NewUUID() libvirt.UUID {
	var id libvirt.UUID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

// ChannelDomainXML describes a domain exposing one unix guest channel.
func ChannelDomainXML(id libvirt.UUID, channelName, channelPath string) string {
	return `<domain type="kvm">
  <name>HostedEngine</name>
  <uuid>` + uuid.UUID(id).String() + `</uuid>
  <memory unit="KiB">16777216</memory>
  <devices>
    <channel type="unix">
      <source mode="bind" path="` + channelPath + `"></source>
      <target type="virtio" name="` + channelName + `"></target>
    </channel>
  </devices>
</domain>`
}

func header(procedure uint32, status int) []byte {
	var buf bytes.Buffer
	encoder := xdr.NewEncoder(&buf)
	encoder.Encode(socket.Header{ //nolint:errcheck
		Program:   Program,
		Version:   ProtocolVersion,
		Procedure: procedure,
		Type:      socket.Reply,
		Serial:    0,
		Status:    uint32(status),
	})

	return buf.Bytes()
}

func packet(procedure uint32, status int, payload ...any) []byte {
	var body bytes.Buffer
	encoder := xdr.NewEncoder(&body)
	for _, p := range payload {
		encoder.Encode(p) //nolint:errcheck
	}

	h := header(procedure, status)
	length := 4 + len(h) + body.Len()
	res := bytes.NewBuffer(make([]byte, 0, length))

	binary.Write(res, binary.BigEndian, uint32(length)) //nolint:errcheck
	binary.Write(res, binary.BigEndian, h)              //nolint:errcheck
	binary.Write(res, binary.BigEndian, body.Bytes())   //nolint:errcheck

	return res.Bytes()
}

func successReply(procedure uint32) []byte {
	return packet(procedure, socket.StatusOK)
}

func uint32Reply(procedure, value uint32) []byte {
	return packet(procedure, socket.StatusOK, value)
}

func stringReply(procedure uint32, value string) []byte {
	return packet(procedure, socket.StatusOK, value)
}

func domainReply(procedure uint32, dom libvirt.Domain) []byte {
	return packet(procedure, socket.StatusOK, dom)
}

func authListReply() []byte {
	// One supported auth type: none.
	return packet(ProcAuthList, socket.StatusOK, uint32(1), uint32(0))
}

func domainStateReply(state libvirt.DomainState) []byte {
	return packet(ProcDomainGetState, socket.StatusOK, int32(state), int32(0))
}

func errorReply(procedure uint32, code libvirt.ErrorNumber, message string) []byte {
	libvirtError := struct {
		Code     uint32
		DomainID uint32
		Padding  uint8
		Message  string
		Level    uint32
	}{
		Code:     uint32(code),
		DomainID: 10,
		Padding:  1,
		Message:  message,
		Level:    2,
	}
	return packet(procedure, socket.StatusError, libvirtError)
}
