// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payment

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const p2trLen = 34

// P2TR pays to a version 1 witness program holding an x-only output key.
//
// InternalKey and MerkleRoot are only known when the template was built from
// the internal key. A parsed template carries just the output key.
type P2TR struct {
	OutputKey   [32]byte
	InternalKey []byte
	MerkleRoot  []byte
}

// NewP2TR returns the BIP86 key-path-only template for an internal key given
// in x-only (32 byte) or compressed (33 byte) form.
func NewP2TR(internalKey []byte) (*P2TR, error) {
	return NewP2TRWithRoot(internalKey, nil)
}

// NewP2TRWithRoot returns the template whose output key commits to the given
// script tree root. A nil root yields the same key as NewP2TR.
func NewP2TRWithRoot(internalKey, merkleRoot []byte) (*P2TR, error) {
	xOnly := ToXOnly(internalKey)
	if xOnly == nil || len(internalKey) == 65 {
		return nil, fmt.Errorf("%w: taproot internal key has %d bytes",
			ErrInvalidPubKey, len(internalKey))
	}

	key, err := schnorr.ParsePubKey(xOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}

	if merkleRoot != nil && len(merkleRoot) != 32 {
		return nil, fmt.Errorf("%w: merkle root has %d bytes",
			ErrInvalidHash, len(merkleRoot))
	}

	outputKey := txscript.ComputeTaprootOutputKey(key, merkleRoot)

	p := &P2TR{
		OutputKey:   [32]byte(schnorr.SerializePubKey(outputKey)),
		InternalKey: bytes.Clone(xOnly),
	}
	if merkleRoot != nil {
		p.MerkleRoot = bytes.Clone(merkleRoot)
	}

	return p, nil
}

// NewP2TRFromOutputKey returns the template for an already tweaked output
// key.
func NewP2TRFromOutputKey(outputKey []byte) (*P2TR, error) {
	if len(outputKey) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("%w: taproot output key has %d bytes",
			ErrInvalidPubKey, len(outputKey))
	}

	return &P2TR{OutputKey: [32]byte(outputKey)}, nil
}

// IsP2TR reports whether script is OP_1 <32 bytes>.
func IsP2TR(script []byte) bool {
	return len(script) == p2trLen &&
		script[0] == txscript.OP_1 &&
		script[1] == txscript.OP_DATA_32
}

// ParseP2TR decomposes a P2TR script.
func ParseP2TR(script []byte) (*P2TR, error) {
	if !IsP2TR(script) {
		return nil, fmt.Errorf("%w: not p2tr", ErrOutputScriptInvalid)
	}

	return &P2TR{OutputKey: [32]byte(script[2:])}, nil
}

func (p *P2TR) payment() {}

// Kind returns KindP2TR.
func (p *P2TR) Kind() Kind { return KindP2TR }

// Script returns OP_1 <output key>.
func (p *P2TR) Script() []byte {
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(p.OutputKey[:]).
		Script()

	return script
}

// Address returns the bech32m address.
func (p *P2TR) Address(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressTaproot(p.OutputKey[:], net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return addr, nil
}

// Unlock returns the key path witness [sig]. The signature must be keyed by
// the output key or the internal key.
func (p *P2TR) Unlock(sigs []Signature) (*Unlock, error) {
	sig, ok := findSig(sigs, func(pubKey []byte) bool {
		xOnly := ToXOnly(pubKey)
		if xOnly == nil {
			return false
		}

		return bytes.Equal(xOnly, p.OutputKey[:]) ||
			bytes.Equal(xOnly, p.InternalKey)
	})
	if !ok {
		return nil, fmt.Errorf("%w: no key path signature for %x",
			ErrMissingSignature, p.OutputKey)
	}

	return &Unlock{Witness: wire.TxWitness{sig.Sig}}, nil
}
