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

// Package packet demultiplexes a raw capture of back to back IPv4/UDP
// packets.
//
// Captures mix the wanted traffic with noise: packets with broken checksums
// and packets between other hosts or ports. Noise is dropped silently;
// only a packet that breaks the fixed header layout stops parsing.
package packet

import (
	"net/netip"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// Filter selects the datagrams whose content is kept.
type Filter struct {
	Source          netip.Addr
	Destination     netip.Addr
	DestinationPort uint16
}

// Accepts reports whether d has valid checksums and travels from f.Source to
// f.Destination on f.DestinationPort.
func (f *Filter) Accepts(d *Datagram) bool {
	return d.HeaderChecksumValid() &&
		d.ChecksumValid() &&
		d.IP.SourceAddr() == f.Source &&
		d.IP.DestinationAddr() == f.Destination &&
		d.UDP.DestinationPort == f.DestinationPort
}

// Parse splits b into datagrams, in capture order.
func Parse(b []byte) ([]*Datagram, error) {
	var datagrams []*Datagram

	s := cryptobyte.String(b)
	for offset := 0; !s.Empty(); offset = len(b) - len(s) {
		d, err := readDatagram(&s)
		if err != nil {
			return nil, errors.Wrapf(err, "packet at offset %d", offset)
		}

		datagrams = append(datagrams, d)
	}

	return datagrams, nil
}

// Demux returns the content of every datagram f accepts, concatenated in
// capture order.
func Demux(b []byte, f *Filter) ([]byte, error) {
	datagrams, err := Parse(b)
	if err != nil {
		return nil, err
	}

	var out []byte
	for _, d := range datagrams {
		if f.Accepts(d) {
			out = append(out, d.Content...)
		}
	}

	return out, nil
}

func readDatagram(s *cryptobyte.String) (*Datagram, error) {
	d := &Datagram{}

	var raw []byte
	if !s.ReadBytes(&raw, InternetHeaderLen+UDPHeaderLen) {
		return nil, errors.Wrap(common.ErrorPreconditionViolation, "truncated headers")
	}

	if _, err := common.UnmarshalList([]common.Unmarshaler{&d.IP, &d.UDP}, raw); err != nil {
		return nil, common.ErrorPreconditionViolation.Wrap(err)
	}

	if d.IP.IHL() != IHLNoOptions {
		return nil, errors.Wrapf(common.ErrorPreconditionViolation, "header length %d", d.IP.IHL())
	}

	if d.IP.Protocol != ProtocolUDP {
		return nil, errors.Wrapf(common.ErrorPreconditionViolation, "protocol %d", d.IP.Protocol)
	}

	if d.UDP.Length < UDPHeaderLen {
		return nil, errors.Wrapf(common.ErrorPreconditionViolation, "udp length %d", d.UDP.Length)
	}

	var content []byte
	if !s.ReadBytes(&content, int(d.UDP.Length)-UDPHeaderLen) {
		return nil, errors.Wrap(common.ErrorPreconditionViolation, "truncated udp content")
	}

	d.Content = append([]byte(nil), content...)

	return d, nil
}
