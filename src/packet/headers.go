// Copyright (c) 2020, Cloudflare. All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright notice,
// this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright notice,
// this list of conditions and the following disclaimer in the documentation
// and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its contributors
// may be used to endorse or promote products derived from this software without
// specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package packet

import (
	"encoding/binary"
	"net/netip"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/tatianab/mint/syntax"
)

// Sizes and field values assumed for every packet in a capture.
const (
	InternetHeaderLen = 20
	UDPHeaderLen      = 8

	// IHLNoOptions is the header length, in 32 bit words, of a header
	// without options.
	IHLNoOptions = 5
	// ProtocolUDP is the IP protocol number of UDP.
	ProtocolUDP = 17

	flagDontFragment   = 0x4000
	fragmentOffsetMask = 0x1FFF
)

// An InternetHeader is an IPv4 header without options (RFC 791 §3.1).
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version|  IHL  |Type of Service|          Total Length         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|         Identification        |Flags|      Fragment Offset    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Time to Live |    Protocol   |         Header Checksum       |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Source Address                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Destination Address                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type InternetHeader struct {
	VersionIHL     uint8
	TypeOfService  uint8
	TotalLength    uint16
	Identification uint16
	FlagsFragment  uint16
	TimeToLive     uint8
	Protocol       uint8
	Checksum       uint16
	Source         uint32
	Destination    uint32
}

var _ common.MarshalUnmarshaler = (*InternetHeader)(nil)

// Marshal encodes an InternetHeader.
func (h *InternetHeader) Marshal() ([]byte, error) {
	return syntax.Marshal(h)
}

// Unmarshal decodes an InternetHeader.
func (h *InternetHeader) Unmarshal(data []byte) (int, error) {
	return syntax.Unmarshal(data, h)
}

// Version returns the IP version.
func (h *InternetHeader) Version() uint8 {
	return h.VersionIHL >> 4
}

// IHL returns the header length in 32 bit words.
func (h *InternetHeader) IHL() uint8 {
	return h.VersionIHL & 0x0F
}

// DontFragment reports whether the DF flag is set.
func (h *InternetHeader) DontFragment() bool {
	return h.FlagsFragment&flagDontFragment != 0
}

// FragmentOffset returns the fragment offset in 8 octet units.
func (h *InternetHeader) FragmentOffset() uint16 {
	return h.FlagsFragment & fragmentOffsetMask
}

// SourceAddr returns the source address.
func (h *InternetHeader) SourceAddr() netip.Addr {
	return addrFromUint32(h.Source)
}

// DestinationAddr returns the destination address.
func (h *InternetHeader) DestinationAddr() netip.Addr {
	return addrFromUint32(h.Destination)
}

// PayloadLen returns the number of octets following the header, as claimed
// by the total length field.
func (h *InternetHeader) PayloadLen() uint16 {
	return h.TotalLength - uint16(h.IHL())*4
}

// A UDPHeader is a user datagram header (RFC 768).
//
//	 0      7 8     15 16    23 24    31
//	+--------+--------+--------+--------+
//	|     Source      |   Destination   |
//	|      Port       |      Port       |
//	+--------+--------+--------+--------+
//	|                 |                 |
//	|     Length      |    Checksum     |
//	+--------+--------+--------+--------+
type UDPHeader struct {
	SourcePort      uint16
	DestinationPort uint16
	Length          uint16
	Checksum        uint16
}

var _ common.MarshalUnmarshaler = (*UDPHeader)(nil)

// Marshal encodes a UDPHeader.
func (h *UDPHeader) Marshal() ([]byte, error) {
	return syntax.Marshal(h)
}

// Unmarshal decodes a UDPHeader.
func (h *UDPHeader) Unmarshal(data []byte) (int, error) {
	return syntax.Unmarshal(data, h)
}

func addrFromUint32(a uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], a)

	return netip.AddrFrom4(b)
}

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}
