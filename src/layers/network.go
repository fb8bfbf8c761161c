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

package layers

import (
	"net/netip"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/packet"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/pkg/errors"
)

// Datagram sizing used by Network.Seal.
const (
	DefaultChunkSize = 256
	sealSourcePort   = 1337
)

// Network keeps the UDP content sent from Filter.Source to
// Filter.Destination:Filter.DestinationPort in a raw IPv4 capture.
// Everything else in the capture is noise.
type Network struct {
	Filter *packet.Filter
	// ChunkSize is the content length of datagrams built by Seal. Zero means
	// DefaultChunkSize.
	ChunkSize int
}

// Name implements Layer.
func (*Network) Name() string {
	return "network"
}

// Extract implements Layer.
func (n *Network) Extract(text string) (string, error) {
	b, err := payload.Extract(text)
	if err != nil {
		return "", err
	}

	content, err := packet.Demux(b, n.Filter)
	if err != nil {
		return "", errors.Wrap(err, "network")
	}

	s, err := common.DecodeUTF8(content)
	if err != nil {
		return "", errors.Wrap(err, "network")
	}

	return s, nil
}

// Seal implements Layer. Each datagram of text is followed by one noise
// datagram, rotating between a corrupt checksum, a foreign source and a
// foreign port.
func (n *Network) Seal(text string) (string, error) {
	size := n.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	if size > packet.MaxContentLen {
		return "", errors.Errorf("chunk size %d exceeds %d", size, packet.MaxContentLen)
	}

	wanted := packet.Endpoints{
		Source:      netip.AddrPortFrom(n.Filter.Source, sealSourcePort),
		Destination: netip.AddrPortFrom(n.Filter.Destination, n.Filter.DestinationPort),
	}

	var capture []byte
	in := []byte(text)
	for id := 0; len(in) > 0; id++ {
		m := size
		if len(in) < m {
			m = len(in)
		}

		wanted.Identification = uint16(2 * id)
		raw, err := packet.Build(wanted, in[:m])
		if err != nil {
			return "", err
		}

		capture = append(capture, raw...)

		noise, err := n.noise(wanted, id, m)
		if err != nil {
			return "", err
		}

		capture = append(capture, noise...)
		in = in[m:]
	}

	return payload.Frame(title(4, "Network Traffic"), capture), nil
}

func (n *Network) noise(wanted packet.Endpoints, id, size int) ([]byte, error) {
	ep := wanted
	ep.Identification = uint16(2*id + 1)

	switch id % 3 {
	case 1:
		ep.Source = netip.AddrPortFrom(ep.Source.Addr().Next(), ep.Source.Port())
	case 2:
		ep.Destination = netip.AddrPortFrom(ep.Destination.Addr(), ep.Destination.Port()+1)
	}

	d, err := packet.NewDatagram(ep, common.GetRandomBytes(size))
	if err != nil {
		return nil, err
	}

	if id%3 == 0 {
		d.UDP.Checksum ^= 0x0100
	}

	return d.Marshal()
}
