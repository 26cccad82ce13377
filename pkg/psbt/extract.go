// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
)

// Extract returns a copy of the unsigned transaction with the final scriptSig
// and witness of every finalized input filled in. The packet is left
// untouched. Inputs that are not finalized keep empty scripts; whether that
// is acceptable is up to the caller, which can check IsComplete first.
func (p *Packet) Extract() (*wire.MsgTx, error) {
	if err := p.checkSanity(); err != nil {
		return nil, err
	}

	tx := p.UnsignedTx.Copy()

	for i, in := range p.Inputs {
		if !in.IsFinalized() {
			log.Debugf("Extracting input %d without final scripts", i)
			continue
		}

		if in.FinalScriptSig != nil {
			tx.TxIn[i].SignatureScript = bytes.Clone(in.FinalScriptSig)
		}

		if in.FinalScriptWitness != nil {
			witness := make(wire.TxWitness, len(in.FinalScriptWitness))
			for j, item := range in.FinalScriptWitness {
				witness[j] = bytes.Clone(item)
			}
			tx.TxIn[i].Witness = witness
		}
	}

	return tx, nil
}

// ExtractFromHex decodes a hex encoded packet and extracts its transaction.
func ExtractFromHex(s string) (*wire.MsgTx, error) {
	p, err := ParseHex(s)
	if err != nil {
		return nil, err
	}

	return p.Extract()
}
