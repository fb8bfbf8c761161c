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
	"fmt"
	"net/netip"

	"github.com/cloudflare/data-onion/src/checksum"
)

// A Datagram is one IPv4 packet carrying UDP, as found in a capture. The
// content is owned by the Datagram.
type Datagram struct {
	IP      InternetHeader
	UDP     UDPHeader
	Content []byte
}

// ComputeHeaderChecksum returns the IPv4 header checksum, summing the ten
// header words with the checksum field taken as zero.
func (d *Datagram) ComputeHeaderChecksum() uint16 {
	h := &d.IP

	var c checksum.Checksum16
	c.Add(uint16(h.VersionIHL)<<8 | uint16(h.TypeOfService))
	c.Add(h.TotalLength)
	c.Add(h.Identification)
	c.Add(h.FlagsFragment)
	c.Add(uint16(h.TimeToLive)<<8 | uint16(h.Protocol))
	c.Add(uint16(h.Source >> 16))
	c.Add(uint16(h.Source))
	c.Add(uint16(h.Destination >> 16))
	c.Add(uint16(h.Destination))

	return c.Checksum()
}

// ComputeChecksum returns the UDP checksum over the pseudo header, the UDP
// header with a zero checksum, and the content.
//
//	0      7 8     15 16    23 24    31
//	+--------+--------+--------+--------+
//	|          source address           |
//	+--------+--------+--------+--------+
//	|        destination address        |
//	+--------+--------+--------+--------+
//	|  zero  |protocol|   UDP length    |
//	+--------+--------+--------+--------+
//
// The pseudo header length is the IP payload length.
func (d *Datagram) ComputeChecksum() uint16 {
	var c checksum.Checksum16
	c.Add(uint16(d.IP.Source >> 16))
	c.Add(uint16(d.IP.Source))
	c.Add(uint16(d.IP.Destination >> 16))
	c.Add(uint16(d.IP.Destination))
	c.Add(uint16(d.IP.Protocol))
	c.Add(d.IP.PayloadLen())

	c.Add(d.UDP.SourcePort)
	c.Add(d.UDP.DestinationPort)
	c.Add(d.UDP.Length)
	c.AddBytes(d.Content)

	return c.Checksum()
}

// HeaderChecksumValid reports whether the IPv4 header checksum matches.
func (d *Datagram) HeaderChecksumValid() bool {
	return d.ComputeHeaderChecksum() == d.IP.Checksum
}

// ChecksumValid reports whether the UDP checksum matches.
func (d *Datagram) ChecksumValid() bool {
	return d.ComputeChecksum() == d.UDP.Checksum
}

// Source returns the sending address and port.
func (d *Datagram) Source() netip.AddrPort {
	return netip.AddrPortFrom(d.IP.SourceAddr(), d.UDP.SourcePort)
}

// Destination returns the receiving address and port.
func (d *Datagram) Destination() netip.AddrPort {
	return netip.AddrPortFrom(d.IP.DestinationAddr(), d.UDP.DestinationPort)
}

func (d *Datagram) String() string {
	return fmt.Sprintf("%s => %s", d.Source(), d.Destination())
}
