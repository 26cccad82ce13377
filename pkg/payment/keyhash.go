// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payment

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	p2pkhLen  = 25
	p2wpkhLen = 22
)

// parsePubKey validates a serialized public key and returns it unchanged.
func parsePubKey(pubKey []byte) ([]byte, error) {
	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}

	return bytes.Clone(pubKey), nil
}

// P2PK pays to a bare public key: <pubkey> OP_CHECKSIG.
type P2PK struct {
	PubKey []byte
}

// NewP2PK returns the P2PK template for a compressed or uncompressed key.
func NewP2PK(pubKey []byte) (*P2PK, error) {
	key, err := parsePubKey(pubKey)
	if err != nil {
		return nil, err
	}

	return &P2PK{PubKey: key}, nil
}

// IsP2PK reports whether script is <33 or 65 byte pubkey> OP_CHECKSIG.
func IsP2PK(script []byte) bool {
	switch len(script) {
	case 35:
		return script[0] == txscript.OP_DATA_33 &&
			isStrictPubKey(script[1:34]) &&
			script[34] == txscript.OP_CHECKSIG

	case 67:
		return script[0] == txscript.OP_DATA_65 &&
			isStrictPubKey(script[1:66]) &&
			script[66] == txscript.OP_CHECKSIG

	default:
		return false
	}
}

// ParseP2PK decomposes a P2PK script.
func ParseP2PK(script []byte) (*P2PK, error) {
	if !IsP2PK(script) {
		return nil, fmt.Errorf("%w: not p2pk", ErrOutputScriptInvalid)
	}

	return &P2PK{PubKey: bytes.Clone(script[1 : len(script)-1])}, nil
}

func (p *P2PK) payment() {}

// Kind returns KindP2PK.
func (p *P2PK) Kind() Kind { return KindP2PK }

// Script returns <pubkey> OP_CHECKSIG.
func (p *P2PK) Script() []byte {
	script, _ := txscript.NewScriptBuilder().
		AddData(p.PubKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()

	return script
}

// Address returns the pay-to-pubkey address.
func (p *P2PK) Address(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressPubKey(p.PubKey, net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return addr, nil
}

// Unlock returns the scriptSig <sig>.
func (p *P2PK) Unlock(sigs []Signature) (*Unlock, error) {
	sig, ok := findSig(sigs, func(pubKey []byte) bool {
		return bytes.Equal(pubKey, p.PubKey)
	})
	if !ok {
		return nil, fmt.Errorf("%w: no signature for %x",
			ErrMissingSignature, p.PubKey)
	}

	scriptSig, err := txscript.NewScriptBuilder().AddData(sig.Sig).Script()
	if err != nil {
		return nil, err
	}

	return &Unlock{ScriptSig: scriptSig}, nil
}

// P2PKH pays to the HASH160 of a public key. PubKey is set when the template
// was built from a key and is nil when it was parsed from a script.
type P2PKH struct {
	Hash   [20]byte
	PubKey []byte
}

// NewP2PKH returns the P2PKH template for a public key.
func NewP2PKH(pubKey []byte) (*P2PKH, error) {
	key, err := parsePubKey(pubKey)
	if err != nil {
		return nil, err
	}

	return &P2PKH{Hash: [20]byte(btcutil.Hash160(key)), PubKey: key}, nil
}

// NewP2PKHFromHash returns the P2PKH template for a 20-byte key hash.
func NewP2PKHFromHash(hash []byte) (*P2PKH, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("%w: p2pkh hash has %d bytes",
			ErrInvalidHash, len(hash))
	}

	return &P2PKH{Hash: [20]byte(hash)}, nil
}

// IsP2PKH reports whether script is
// OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
func IsP2PKH(script []byte) bool {
	return len(script) == p2pkhLen &&
		script[0] == txscript.OP_DUP &&
		script[1] == txscript.OP_HASH160 &&
		script[2] == txscript.OP_DATA_20 &&
		script[23] == txscript.OP_EQUALVERIFY &&
		script[24] == txscript.OP_CHECKSIG
}

// ParseP2PKH decomposes a P2PKH script.
func ParseP2PKH(script []byte) (*P2PKH, error) {
	if !IsP2PKH(script) {
		return nil, fmt.Errorf("%w: not p2pkh", ErrOutputScriptInvalid)
	}

	return &P2PKH{Hash: [20]byte(script[3:23])}, nil
}

func (p *P2PKH) payment() {}

// Kind returns KindP2PKH.
func (p *P2PKH) Kind() Kind { return KindP2PKH }

// Script returns the locking script.
func (p *P2PKH) Script() []byte {
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(p.Hash[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()

	return script
}

// Address returns the base58 pay-to-pubkey-hash address.
func (p *P2PKH) Address(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressPubKeyHash(p.Hash[:], net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return addr, nil
}

// Unlock returns the scriptSig <sig> <pubkey>, using the first signature whose
// key hashes to the template hash.
func (p *P2PKH) Unlock(sigs []Signature) (*Unlock, error) {
	sig, ok := findSig(sigs, hashMatcher(p.Hash))
	if !ok {
		return nil, fmt.Errorf("%w: no signature for key hash %x",
			ErrMissingSignature, p.Hash)
	}

	scriptSig, err := txscript.NewScriptBuilder().
		AddData(sig.Sig).
		AddData(sig.PubKey).
		Script()
	if err != nil {
		return nil, err
	}

	return &Unlock{ScriptSig: scriptSig}, nil
}

// P2WPKH pays to a version 0 witness program holding a key hash.
type P2WPKH struct {
	Hash   [20]byte
	PubKey []byte
}

// NewP2WPKH returns the P2WPKH template for a compressed public key.
// Uncompressed keys are not allowed in witness programs.
func NewP2WPKH(pubKey []byte) (*P2WPKH, error) {
	if len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: p2wpkh requires a compressed key",
			ErrInvalidPubKey)
	}

	key, err := parsePubKey(pubKey)
	if err != nil {
		return nil, err
	}

	return &P2WPKH{Hash: [20]byte(btcutil.Hash160(key)), PubKey: key}, nil
}

// NewP2WPKHFromHash returns the P2WPKH template for a 20-byte key hash.
func NewP2WPKHFromHash(hash []byte) (*P2WPKH, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("%w: p2wpkh hash has %d bytes",
			ErrInvalidHash, len(hash))
	}

	return &P2WPKH{Hash: [20]byte(hash)}, nil
}

// IsP2WPKH reports whether script is OP_0 <20 bytes>.
func IsP2WPKH(script []byte) bool {
	return len(script) == p2wpkhLen &&
		script[0] == txscript.OP_0 &&
		script[1] == txscript.OP_DATA_20
}

// ParseP2WPKH decomposes a P2WPKH script.
func ParseP2WPKH(script []byte) (*P2WPKH, error) {
	if !IsP2WPKH(script) {
		return nil, fmt.Errorf("%w: not p2wpkh", ErrOutputScriptInvalid)
	}

	return &P2WPKH{Hash: [20]byte(script[2:])}, nil
}

func (p *P2WPKH) payment() {}

// Kind returns KindP2WPKH.
func (p *P2WPKH) Kind() Kind { return KindP2WPKH }

// Script returns OP_0 <key hash>.
func (p *P2WPKH) Script() []byte {
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(p.Hash[:]).
		Script()

	return script
}

// SigningScript returns the P2PKH script that BIP143 commits to when signing
// a P2WPKH input.
func (p *P2WPKH) SigningScript() []byte {
	return (&P2PKH{Hash: p.Hash}).Script()
}

// Address returns the bech32 address.
func (p *P2WPKH) Address(net *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(p.Hash[:], net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return addr, nil
}

// Unlock returns the witness [sig, pubkey] and an empty scriptSig.
func (p *P2WPKH) Unlock(sigs []Signature) (*Unlock, error) {
	sig, ok := findSig(sigs, hashMatcher(p.Hash))
	if !ok {
		return nil, fmt.Errorf("%w: no signature for key hash %x",
			ErrMissingSignature, p.Hash)
	}

	return &Unlock{
		Witness: wire.TxWitness{sig.Sig, sig.PubKey},
	}, nil
}
