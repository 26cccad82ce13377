// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payment

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	p2shLen  = 23
	p2wshLen = 34
)

// P2SH pays to the HASH160 of a redeem script. Redeem is nil when the
// template was recognized from a locking script.
type P2SH struct {
	Hash   [20]byte
	Redeem Payment
}

// NewP2SH wraps a template in pay-to-script-hash.
func NewP2SH(redeem Payment) *P2SH {
	return &P2SH{
		Hash:   [20]byte(btcutil.Hash160(redeem.Script())),
		Redeem: redeem,
	}
}

// NewP2SHFromHash returns the P2SH template for a 20-byte script hash.
func NewP2SHFromHash(hash []byte) (*P2SH, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("%w: p2sh hash has %d bytes",
			ErrInvalidHash, len(hash))
	}

	return &P2SH{Hash: [20]byte(hash)}, nil
}

// IsP2SH reports whether script is OP_HASH160 <20 bytes> OP_EQUAL.
func IsP2SH(script []byte) bool {
	return len(script) == p2shLen &&
		script[0] == txscript.OP_HASH160 &&
		script[1] == txscript.OP_DATA_20 &&
		script[22] == txscript.OP_EQUAL
}

// ParseP2SH decomposes a P2SH script.
func ParseP2SH(script []byte) (*P2SH, error) {
	if !IsP2SH(script) {
		return nil, fmt.Errorf("%w: not p2sh", ErrOutputScriptInvalid)
	}

	return &P2SH{Hash: [20]byte(script[2:22])}, nil
}

func (p *P2SH) payment() {}

// Kind returns KindP2SH.
func (p *P2SH) Kind() Kind { return KindP2SH }

// Script returns OP_HASH160 <script hash> OP_EQUAL.
func (p *P2SH) Script() []byte {
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(p.Hash[:]).
		AddOp(txscript.OP_EQUAL).
		Script()

	return script
}

// Address returns the base58 pay-to-script-hash address.
func (p *P2SH) Address(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressScriptHashFromHash(p.Hash[:], net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return addr, nil
}

// Unlock satisfies the redeem template and appends a push of the redeem
// script to its scriptSig. A witness produced by the redeem template is
// passed through unchanged.
func (p *P2SH) Unlock(sigs []Signature) (*Unlock, error) {
	if p.Redeem == nil {
		return nil, fmt.Errorf("%w: p2sh %x", ErrMissingRedeem, p.Hash)
	}

	inner, err := p.Redeem.Unlock(sigs)
	if err != nil {
		return nil, err
	}

	// The inner scriptSig is push-only, so its bytes can be prefixed
	// verbatim.
	scriptSig, err := txscript.NewScriptBuilder().
		AddData(p.Redeem.Script()).
		Script()
	if err != nil {
		return nil, err
	}

	return &Unlock{
		ScriptSig: append(append([]byte{}, inner.ScriptSig...),
			scriptSig...),
		Witness: inner.Witness,
	}, nil
}

// P2WSH pays to a version 0 witness program holding the SHA256 of a witness
// script. Redeem is nil when the template was recognized from a locking
// script.
type P2WSH struct {
	Hash   [32]byte
	Redeem Payment
}

// NewP2WSH wraps a template in pay-to-witness-script-hash.
func NewP2WSH(redeem Payment) *P2WSH {
	return &P2WSH{
		Hash:   sha256.Sum256(redeem.Script()),
		Redeem: redeem,
	}
}

// NewP2WSHFromHash returns the P2WSH template for a 32-byte script hash.
func NewP2WSHFromHash(hash []byte) (*P2WSH, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: p2wsh hash has %d bytes",
			ErrInvalidHash, len(hash))
	}

	return &P2WSH{Hash: [32]byte(hash)}, nil
}

// IsP2WSH reports whether script is OP_0 <32 bytes>.
func IsP2WSH(script []byte) bool {
	return len(script) == p2wshLen &&
		script[0] == txscript.OP_0 &&
		script[1] == txscript.OP_DATA_32
}

// ParseP2WSH decomposes a P2WSH script.
func ParseP2WSH(script []byte) (*P2WSH, error) {
	if !IsP2WSH(script) {
		return nil, fmt.Errorf("%w: not p2wsh", ErrOutputScriptInvalid)
	}

	return &P2WSH{Hash: [32]byte(script[2:])}, nil
}

func (p *P2WSH) payment() {}

// Kind returns KindP2WSH.
func (p *P2WSH) Kind() Kind { return KindP2WSH }

// Script returns OP_0 <script hash>.
func (p *P2WSH) Script() []byte {
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(p.Hash[:]).
		Script()

	return script
}

// Address returns the bech32 address.
func (p *P2WSH) Address(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressWitnessScriptHash(p.Hash[:], net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return addr, nil
}

// Unlock satisfies the witness script and moves its unlocking pushes onto the
// witness stack, followed by the witness script itself. The scriptSig is
// empty.
func (p *P2WSH) Unlock(sigs []Signature) (*Unlock, error) {
	if p.Redeem == nil {
		return nil, fmt.Errorf("%w: p2wsh %x", ErrMissingRedeem, p.Hash)
	}

	inner, err := p.Redeem.Unlock(sigs)
	if err != nil {
		return nil, err
	}

	items, err := stackItems(inner.ScriptSig)
	if err != nil {
		return nil, err
	}

	witness := make(wire.TxWitness, 0, len(items)+len(inner.Witness)+1)
	witness = append(witness, items...)
	witness = append(witness, inner.Witness...)
	witness = append(witness, p.Redeem.Script())

	return &Unlock{Witness: witness}, nil
}
