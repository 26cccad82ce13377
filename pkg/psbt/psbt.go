// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package psbt implements BIP174 partially signed transactions with the
// BIP371 taproot fields: the document model, its binary codec, and the
// signer, finalizer and extractor roles.
//
// A Packet owns its unsigned transaction and one PInput and POutput per
// transaction input and output. Signing records partial signatures on the
// inputs; finalizing turns them into the final scriptSig and witness and
// clears everything that was only needed to sign; extracting copies the final
// data into a copy of the transaction.
package psbt

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/payment"
)

// New creates a packet for an unsigned transaction. The transaction must not
// carry any input scripts or witnesses.
func New(tx *wire.MsgTx) (*Packet, error) {
	for i, in := range tx.TxIn {
		if len(in.SignatureScript) != 0 || len(in.Witness) != 0 {
			return nil, fmt.Errorf("%w: input %d",
				ErrUnsignedTxHasScripts, i)
		}
	}

	return &Packet{
		UnsignedTx: tx,
		Inputs:     make([]PInput, len(tx.TxIn)),
		Outputs:    make([]POutput, len(tx.TxOut)),
	}, nil
}

// NewEmpty returns a packet for an empty version 2 transaction.
func NewEmpty() *Packet {
	p, _ := New(wire.NewMsgTx(2))
	return p
}

// AddInput appends a transaction input spending outpoint together with its
// input fields.
func (p *Packet) AddInput(outpoint wire.OutPoint, sequence uint32,
	in PInput) {

	p.UnsignedTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: outpoint,
		Sequence:         sequence,
	})
	p.Inputs = append(p.Inputs, in)
}

// AddOutput appends a transaction output together with its output fields.
func (p *Packet) AddOutput(txOut *wire.TxOut, out POutput) {
	p.UnsignedTx.AddTxOut(txOut)
	p.Outputs = append(p.Outputs, out)
}

// RemoveInput deletes the input at index together with its fields.
func (p *Packet) RemoveInput(index int) error {
	if err := p.checkIndex(index); err != nil {
		return err
	}

	tx := p.UnsignedTx
	tx.TxIn = append(tx.TxIn[:index], tx.TxIn[index+1:]...)
	p.Inputs = append(p.Inputs[:index], p.Inputs[index+1:]...)

	return nil
}

// RemoveOutput deletes the output at index together with its fields.
func (p *Packet) RemoveOutput(index int) error {
	if index < 0 || index >= len(p.Outputs) {
		return fmt.Errorf("%w: output %d of %d", ErrIndexOutOfBounds,
			index, len(p.Outputs))
	}

	tx := p.UnsignedTx
	tx.TxOut = append(tx.TxOut[:index], tx.TxOut[index+1:]...)
	p.Outputs = append(p.Outputs[:index], p.Outputs[index+1:]...)

	return nil
}

// checkSanity verifies that the packet has one input and output entry per
// transaction input and output.
func (p *Packet) checkSanity() error {
	if p.UnsignedTx == nil {
		return ErrMissingUnsignedTx
	}

	if len(p.Inputs) != len(p.UnsignedTx.TxIn) {
		return fmt.Errorf("%w: %d input maps for %d inputs",
			ErrInputCountMismatch, len(p.Inputs),
			len(p.UnsignedTx.TxIn))
	}

	if len(p.Outputs) != len(p.UnsignedTx.TxOut) {
		return fmt.Errorf("%w: %d output maps for %d outputs",
			ErrOutputCountMismatch, len(p.Outputs),
			len(p.UnsignedTx.TxOut))
	}

	return nil
}

func (p *Packet) checkIndex(index int) error {
	if index < 0 || index >= len(p.Inputs) ||
		index >= len(p.UnsignedTx.TxIn) {

		return fmt.Errorf("%w: input %d of %d", ErrIndexOutOfBounds,
			index, len(p.Inputs))
	}

	return nil
}

// PrevOut returns the output spent by input index.
func (p *Packet) PrevOut(index int) (*wire.TxOut, error) {
	if err := p.checkIndex(index); err != nil {
		return nil, err
	}

	outpoint := p.UnsignedTx.TxIn[index].PreviousOutPoint

	return p.Inputs[index].prevOut(outpoint)
}

// IsTaprootInput reports whether input index is spent through taproot. That
// is the case when it carries any taproot field or its witness UTXO pays to a
// P2TR script.
func (p *Packet) IsTaprootInput(index int) bool {
	if index < 0 || index >= len(p.Inputs) {
		return false
	}

	in := &p.Inputs[index]
	switch {
	case in.TaprootInternalKey != nil,
		in.TaprootMerkleRoot != nil,
		len(in.TaprootLeafScript) > 0,
		len(in.TaprootBip32Derivation) > 0:

		return true

	case in.WitnessUtxo != nil:
		return payment.IsP2TR(in.WitnessUtxo.PkScript)

	default:
		return false
	}
}

// IsComplete reports whether every input is finalized.
func (p *Packet) IsComplete() bool {
	for i := range p.Inputs {
		if !p.Inputs[i].IsFinalized() {
			return false
		}
	}

	return true
}

// SumInputValues returns the total value of the outputs spent by the packet.
func (p *Packet) SumInputValues() (btcutil.Amount, error) {
	if err := p.checkSanity(); err != nil {
		return 0, err
	}

	var total btcutil.Amount
	for i := range p.Inputs {
		prevOut, err := p.PrevOut(i)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
		total += btcutil.Amount(prevOut.Value)
	}

	return total, nil
}

// Fee returns the fee paid by the transaction: the value of the spent outputs
// minus the value of the created outputs. Every input needs UTXO data.
func (p *Packet) Fee() (btcutil.Amount, error) {
	in, err := p.SumInputValues()
	if err != nil {
		return 0, err
	}

	var out btcutil.Amount
	for _, txOut := range p.UnsignedTx.TxOut {
		out += btcutil.Amount(txOut.Value)
	}

	return in - out, nil
}
