// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package payment recognizes, constructs and satisfies the standard Bitcoin
// output script templates.
//
// The set of templates is closed: P2PK, P2PKH, P2SH, P2WPKH, P2WSH, P2TR and
// bare multisig. Each one is a concrete type implementing Payment, and a
// locking script is resolved to its template exactly once through FromScript.
// The wrapping templates (P2SH and P2WSH) hold their inner template, so the
// unlock data for a nested spend is built by asking the inner template first
// and then wrapping its result.
package payment

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrOutputScriptInvalid is returned when a script does not have the
	// exact shape of the template it is being parsed as.
	ErrOutputScriptInvalid = errors.New("output script invalid")

	// ErrAddressInvalid is returned when an address cannot be decoded, is
	// for another network, or the template has no address form.
	ErrAddressInvalid = errors.New("address invalid")

	// ErrInvalidPubKey is returned when a public key cannot be parsed or
	// has the wrong encoding for the template.
	ErrInvalidPubKey = errors.New("invalid public key")

	// ErrInvalidHash is returned when a script or key hash has the wrong
	// length for the template.
	ErrInvalidHash = errors.New("invalid hash length")

	// ErrMissingSignature is returned when the signatures handed to Unlock
	// are not enough to satisfy the template.
	ErrMissingSignature = errors.New("missing signature")

	// ErrMissingRedeem is returned when a P2SH or P2WSH template was
	// recognized from its hash alone and so cannot build unlock data.
	ErrMissingRedeem = errors.New("inner script unknown")

	// ErrInvalidMultisig is returned for an m-of-n template outside the
	// standard bounds.
	ErrInvalidMultisig = errors.New("invalid multisig parameters")
)

// Kind identifies one of the supported output script templates.
type Kind uint8

const (
	// KindUnknown is returned for scripts that match no template.
	KindUnknown Kind = iota

	// KindP2PK pays to a bare public key.
	KindP2PK

	// KindP2PKH pays to the HASH160 of a public key.
	KindP2PKH

	// KindP2SH pays to the HASH160 of a redeem script.
	KindP2SH

	// KindP2WPKH pays to a version 0 witness program of a key hash.
	KindP2WPKH

	// KindP2WSH pays to a version 0 witness program of a script's SHA256.
	KindP2WSH

	// KindP2TR pays to a version 1 witness program holding an x-only key.
	KindP2TR

	// KindMultisig is a bare m-of-n OP_CHECKMULTISIG script.
	KindMultisig
)

// String returns the conventional name of the template.
func (k Kind) String() string {
	switch k {
	case KindP2PK:
		return "p2pk"
	case KindP2PKH:
		return "p2pkh"
	case KindP2SH:
		return "p2sh"
	case KindP2WPKH:
		return "p2wpkh"
	case KindP2WSH:
		return "p2wsh"
	case KindP2TR:
		return "p2tr"
	case KindMultisig:
		return "multisig"
	default:
		return "unknown"
	}
}

// Signature is a signature collected for a public key. Sig holds the encoded
// signature including any trailing sighash byte, exactly as it is placed on
// the stack.
type Signature struct {
	PubKey []byte
	Sig    []byte
}

// Unlock is the data that satisfies a locking script: the unlocking script
// (scriptSig) and the witness stack. Either may be empty.
type Unlock struct {
	ScriptSig []byte
	Witness   wire.TxWitness
}

// Payment is implemented by every output script template.
type Payment interface {
	// Kind returns the template identifier.
	Kind() Kind

	// Script returns the locking script.
	Script() []byte

	// Address returns the address that encodes this locking script on the
	// given network.
	Address(net *chaincfg.Params) (btcutil.Address, error)

	// Unlock builds the unlocking script and witness from the collected
	// signatures.
	Unlock(sigs []Signature) (*Unlock, error)

	// payment seals the interface to the templates of this package.
	payment()
}

// Classify returns the template a script matches, or KindUnknown.
//
// The checks run in a fixed order: P2PKH, P2SH, P2WPKH, P2WSH, P2TR, P2PK,
// multisig. A well-formed standard script matches at most one of them.
func Classify(script []byte) Kind {
	switch {
	case IsP2PKH(script):
		return KindP2PKH
	case IsP2SH(script):
		return KindP2SH
	case IsP2WPKH(script):
		return KindP2WPKH
	case IsP2WSH(script):
		return KindP2WSH
	case IsP2TR(script):
		return KindP2TR
	case IsP2PK(script):
		return KindP2PK
	case IsMultisig(script):
		return KindMultisig
	default:
		return KindUnknown
	}
}

// FromScript decomposes a locking script into its template. Wrapping
// templates are returned without their inner template, which is not
// recoverable from the hash.
func FromScript(script []byte) (Payment, error) {
	switch Classify(script) {
	case KindP2PKH:
		return ParseP2PKH(script)
	case KindP2SH:
		return ParseP2SH(script)
	case KindP2WPKH:
		return ParseP2WPKH(script)
	case KindP2WSH:
		return ParseP2WSH(script)
	case KindP2TR:
		return ParseP2TR(script)
	case KindP2PK:
		return ParseP2PK(script)
	case KindMultisig:
		return ParseMultisig(script)
	default:
		return nil, fmt.Errorf("%w: no template matches %x",
			ErrOutputScriptInvalid, script)
	}
}

// FromAddress decodes an address for the given network and returns the
// template it pays to.
func FromAddress(addr string, net *chaincfg.Params) (Payment, error) {
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	if !decoded.IsForNet(net) {
		return nil, fmt.Errorf("%w: %s is not for %s", ErrAddressInvalid,
			addr, net.Name)
	}

	var p Payment
	switch a := decoded.(type) {
	case *btcutil.AddressPubKey:
		p, err = NewP2PK(a.ScriptAddress())

	case *btcutil.AddressPubKeyHash:
		p, err = NewP2PKHFromHash(a.ScriptAddress())

	case *btcutil.AddressScriptHash:
		p, err = NewP2SHFromHash(a.ScriptAddress())

	case *btcutil.AddressWitnessPubKeyHash:
		p, err = NewP2WPKHFromHash(a.WitnessProgram())

	case *btcutil.AddressWitnessScriptHash:
		p, err = NewP2WSHFromHash(a.WitnessProgram())

	case *btcutil.AddressTaproot:
		p, err = NewP2TRFromOutputKey(a.WitnessProgram())

	default:
		return nil, fmt.Errorf("%w: unsupported address type %T",
			ErrAddressInvalid, decoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressInvalid, err)
	}

	return p, nil
}

// findSig returns the first signature whose public key satisfies match.
func findSig(sigs []Signature, match func(pubKey []byte) bool) (Signature,
	bool) {

	for _, sig := range sigs {
		if match(sig.PubKey) {
			return sig, true
		}
	}

	return Signature{}, false
}

// hashMatcher matches public keys whose HASH160 equals hash.
func hashMatcher(hash [20]byte) func([]byte) bool {
	return func(pubKey []byte) bool {
		return len(pubKey) > 0 && [20]byte(btcutil.Hash160(pubKey)) == hash
	}
}
