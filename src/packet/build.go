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
	"math"
	"net/netip"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// DefaultTTL is the time to live written by Build.
const DefaultTTL = 64

// MaxContentLen is the largest content a single datagram can carry.
const MaxContentLen = math.MaxUint16 - InternetHeaderLen - UDPHeaderLen

// Endpoints names both ends of a datagram.
type Endpoints struct {
	Source         netip.AddrPort
	Destination    netip.AddrPort
	Identification uint16
}

// NewDatagram returns a datagram from ep carrying content, with both
// checksums filled in.
func NewDatagram(ep Endpoints, content []byte) (*Datagram, error) {
	if len(content) > MaxContentLen {
		return nil, errors.Errorf("content of %d bytes does not fit in a datagram", len(content))
	}

	if !ep.Source.Addr().Is4() || !ep.Destination.Addr().Is4() {
		return nil, errors.New("endpoints must be IPv4")
	}

	d := &Datagram{
		IP: InternetHeader{
			VersionIHL:     4<<4 | IHLNoOptions,
			TotalLength:    uint16(InternetHeaderLen + UDPHeaderLen + len(content)),
			Identification: ep.Identification,
			FlagsFragment:  flagDontFragment,
			TimeToLive:     DefaultTTL,
			Protocol:       ProtocolUDP,
			Source:         addrToUint32(ep.Source.Addr()),
			Destination:    addrToUint32(ep.Destination.Addr()),
		},
		UDP: UDPHeader{
			SourcePort:      ep.Source.Port(),
			DestinationPort: ep.Destination.Port(),
			Length:          uint16(UDPHeaderLen + len(content)),
		},
		Content: append([]byte(nil), content...),
	}

	d.IP.Checksum = d.ComputeHeaderChecksum()
	d.UDP.Checksum = d.ComputeChecksum()

	return d, nil
}

// Marshal encodes the datagram as it appears in a capture.
func (d *Datagram) Marshal() ([]byte, error) {
	ipRaw, err := d.IP.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal ip header")
	}

	udpRaw, err := d.UDP.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal udp header")
	}

	var b cryptobyte.Builder
	b.AddBytes(ipRaw)
	b.AddBytes(udpRaw)
	b.AddBytes(d.Content)

	return b.Bytes()
}

// Build is NewDatagram followed by Marshal.
func Build(ep Endpoints, content []byte) ([]byte, error) {
	d, err := NewDatagram(ep, content)
	if err != nil {
		return nil, err
	}

	return d.Marshal()
}
