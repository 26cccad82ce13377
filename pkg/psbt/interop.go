// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"

	btcpsbt "github.com/btcsuite/btcd/btcutil/psbt"
)

// ToPacket converts the packet into a btcutil/psbt packet through its
// serialized form.
func (p *Packet) ToPacket() (*btcpsbt.Packet, error) {
	raw, err := p.Serialize()
	if err != nil {
		return nil, err
	}

	return btcpsbt.NewFromRawBytes(bytes.NewReader(raw), false)
}

// FromPacket converts a btcutil/psbt packet into a packet of this package.
func FromPacket(packet *btcpsbt.Packet) (*Packet, error) {
	var raw bytes.Buffer
	if err := packet.Serialize(&raw); err != nil {
		return nil, err
	}

	return Parse(raw.Bytes())
}
