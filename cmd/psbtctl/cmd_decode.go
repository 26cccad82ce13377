// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"

	btcpsbt "github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/payment"
	"github.com/btcsuite/psbtkit/pkg/psbt"
	"github.com/jessevdk/go-flags"
)

type decodedInput struct {
	OutPoint    string `json:"outpoint"`
	Sequence    uint32 `json:"sequence"`
	Value       *int64 `json:"value,omitempty"`
	Script      string `json:"script,omitempty"`
	Type        string `json:"type,omitempty"`
	PartialSigs int    `json:"partial_sigs"`
	Finalized   bool   `json:"finalized"`
}

type decodedOutput struct {
	Value   int64  `json:"value"`
	Script  string `json:"script"`
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
}

type decodedPacket struct {
	TxID       string          `json:"txid"`
	Version    int32           `json:"version"`
	LockTime   uint32          `json:"locktime"`
	XPubs      int             `json:"xpubs"`
	Inputs     []decodedInput  `json:"inputs"`
	Outputs    []decodedOutput `json:"outputs"`
	InputValue *int64          `json:"input_value,omitempty"`
	Fee        *int64          `json:"fee,omitempty"`
	Complete   bool            `json:"complete"`
}

type decodeCommand struct {
	cfg *config
}

func newDecodeCommand(cfg *config) *decodeCommand {
	return &decodeCommand{cfg: cfg}
}

func (x *decodeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"decode",
		"Print a PSBT as JSON",
		"Decode a hex or base64 PSBT given as the argument or on "+
			"stdin and print its transaction, inputs, outputs and "+
			"fee",
		x,
	)
	return err
}

func (x *decodeCommand) Execute(args []string) error {
	packet, err := readPacket(args, x.cfg.stdin)
	if err != nil {
		return err
	}

	decoded, err := decodePacket(packet, x.cfg.params)
	if err != nil {
		return err
	}

	return printJSON(x.cfg.stdout, decoded)
}

// decodePacket summarizes a packet for display. Values that depend on UTXO
// data the packet lacks are left out.
func decodePacket(packet *psbt.Packet,
	params *chaincfg.Params) (*decodedPacket, error) {

	tx := packet.UnsignedTx
	decoded := &decodedPacket{
		TxID:     tx.TxHash().String(),
		Version:  tx.Version,
		LockTime: tx.LockTime,
		XPubs:    len(packet.XPubs),
		Inputs:   make([]decodedInput, 0, len(tx.TxIn)),
		Outputs:  make([]decodedOutput, 0, len(tx.TxOut)),
		Complete: packet.IsComplete(),
	}

	for i, txIn := range tx.TxIn {
		in := &packet.Inputs[i]
		d := decodedInput{
			OutPoint:    txIn.PreviousOutPoint.String(),
			Sequence:    txIn.Sequence,
			PartialSigs: len(in.PartialSigs),
			Finalized:   in.IsFinalized(),
		}

		prevOut, err := packet.PrevOut(i)
		switch {
		case err == nil:
			value := prevOut.Value
			d.Value = &value
			d.Script = hex.EncodeToString(prevOut.PkScript)
			d.Type = payment.Classify(prevOut.PkScript).String()

		case !errors.Is(err, psbt.ErrMissingUtxoInfo):
			return nil, err
		}

		decoded.Inputs = append(decoded.Inputs, d)
	}

	for _, txOut := range tx.TxOut {
		decoded.Outputs = append(
			decoded.Outputs, decodeOutput(txOut, params),
		)
	}

	fee, err := packet.Fee()
	switch {
	case err == nil:
		value := int64(fee)
		decoded.Fee = &value

	case !errors.Is(err, psbt.ErrMissingUtxoInfo):
		return nil, err
	}

	// Cross-check the input total against btcutil's reading of the same
	// packet.
	if decoded.Fee != nil {
		btcPacket, err := packet.ToPacket()
		if err != nil {
			return nil, err
		}

		total, err := btcpsbt.SumUtxoInputValues(btcPacket)
		if err != nil {
			return nil, err
		}
		decoded.InputValue = &total
	}

	return decoded, nil
}

func decodeOutput(txOut *wire.TxOut, params *chaincfg.Params) decodedOutput {
	d := decodedOutput{
		Value:  txOut.Value,
		Script: hex.EncodeToString(txOut.PkScript),
		Type:   payment.Classify(txOut.PkScript).String(),
	}

	p, err := payment.FromScript(txOut.PkScript)
	if err != nil {
		return d
	}

	addr, err := p.Address(params)
	if err != nil {
		return d
	}
	d.Address = addr.EncodeAddress()

	return d
}
