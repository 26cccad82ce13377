// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/payment"
	"github.com/btcsuite/psbtkit/pkg/sighash"
)

// taprootSig returns a schnorr signature as it appears on the witness stack:
// 64 bytes for SIGHASH_DEFAULT, otherwise followed by the sighash byte.
func taprootSig(sig []byte, hashType txscript.SigHashType) []byte {
	if hashType == txscript.SigHashDefault {
		return bytes.Clone(sig)
	}

	return append(bytes.Clone(sig), byte(hashType))
}

// checkSigHashAllowed fails with ErrSigHashMismatch when allowed is non-empty
// and does not contain hashType.
func checkSigHashAllowed(hashType txscript.SigHashType,
	allowed []txscript.SigHashType) error {

	if len(allowed) == 0 || slices.Contains(allowed, hashType) {
		return nil
	}

	return fmt.Errorf("%w: %v not in %v", ErrSigHashMismatch, hashType,
		allowed)
}

// SignAllInputs signs every input with key. It stops at the first input that
// cannot be signed.
func (p *Packet) SignAllInputs(key *btcec.PrivateKey,
	allowed []txscript.SigHashType) error {

	for i := range p.Inputs {
		if err := p.SignInput(i, key, allowed); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	return nil
}

// SignInput signs input index with key and records the signature on the
// input. Taproot inputs get a key path signature and one script path
// signature per leaf that references the key; other inputs get an ECDSA
// partial signature.
//
// allowed restricts the sighash types the input may request. An empty list
// accepts any type. Signing a finalized input does nothing.
func (p *Packet) SignInput(index int, key *btcec.PrivateKey,
	allowed []txscript.SigHashType) error {

	if err := p.checkSanity(); err != nil {
		return err
	}
	if err := p.checkIndex(index); err != nil {
		return err
	}

	if p.Inputs[index].IsFinalized() {
		log.Debugf("Input %d already finalized, not signing", index)
		return nil
	}

	if p.IsTaprootInput(index) {
		return p.signTaprootInput(index, key, allowed)
	}

	return p.signInput(index, key, allowed)
}

// signingScript resolves the script a legacy or segwit v0 signature commits
// to, and whether the segwit v0 digest applies.
func (p *Packet) signingScript(index int,
	prevOut *wire.TxOut) ([]byte, bool, error) {

	in := &p.Inputs[index]

	isP2SH := payment.IsP2SH(prevOut.PkScript)
	if isP2SH && in.RedeemScript == nil {
		return nil, false, ErrMissingRedeemScript
	}

	isP2WSH := payment.IsP2WSH(prevOut.PkScript) ||
		(isP2SH && payment.IsP2WSH(in.RedeemScript))
	if isP2WSH && in.WitnessScript == nil {
		return nil, false, ErrMissingWitnessScript
	}

	switch {
	case isP2WSH:
		return in.WitnessScript, true, nil

	case isP2SH:
		return p2wpkhSigningScript(in.RedeemScript)

	default:
		return p2wpkhSigningScript(prevOut.PkScript)
	}
}

// p2wpkhSigningScript returns the P2PKH script that a P2WPKH program is
// signed with, or script itself for anything else.
func p2wpkhSigningScript(script []byte) ([]byte, bool, error) {
	if !payment.IsP2WPKH(script) {
		return script, false, nil
	}

	p2wpkh, err := payment.ParseP2WPKH(script)
	if err != nil {
		return nil, false, err
	}

	return p2wpkh.SigningScript(), true, nil
}

func (p *Packet) signInput(index int, key *btcec.PrivateKey,
	allowed []txscript.SigHashType) error {

	in := &p.Inputs[index]

	hashType := in.SighashType.UnwrapOr(txscript.SigHashAll)
	if err := checkSigHashAllowed(hashType, allowed); err != nil {
		return err
	}

	prevOut, err := p.PrevOut(index)
	if err != nil {
		return err
	}

	script, segwit, err := p.signingScript(index, prevOut)
	if err != nil {
		return err
	}

	engine := sighash.New(p.UnsignedTx)

	var digest []byte
	if segwit {
		digest, err = engine.WitnessV0(
			index, script, prevOut.Value, hashType,
		)
	} else {
		digest, err = engine.Legacy(index, script, hashType)
	}
	if err != nil {
		return err
	}

	sig := ecdsa.Sign(key, digest).Serialize()
	sig = append(sig, byte(hashType))

	pubKey := key.PubKey().SerializeCompressed()
	in.addPartialSig(pubKey, sig)

	log.Debugf("Signed input %d with %x (segwit=%v, sighash=%v)", index,
		pubKey, segwit, hashType)

	return nil
}

// addPartialSig records sig for pubKey, replacing an earlier one.
func (i *PInput) addPartialSig(pubKey, sig []byte) {
	for _, existing := range i.PartialSigs {
		if bytes.Equal(existing.PubKey, pubKey) {
			existing.Signature = sig
			return
		}
	}

	i.PartialSigs = append(i.PartialSigs, &PartialSig{
		PubKey:    pubKey,
		Signature: sig,
	})
}

// addTaprootScriptSig records sig, replacing an earlier one for the same key
// and leaf.
func (i *PInput) addTaprootScriptSig(sig *TaprootScriptSpendSig) {
	for j, existing := range i.TaprootScriptSpendSig {
		if bytes.Equal(existing.XOnlyPubKey, sig.XOnlyPubKey) &&
			bytes.Equal(existing.LeafHash, sig.LeafHash) {

			i.TaprootScriptSpendSig[j] = sig
			return
		}
	}

	i.TaprootScriptSpendSig = append(i.TaprootScriptSpendSig, sig)
}

// prevOuts returns the output spent by every input, in input order.
func (p *Packet) prevOuts() ([]*wire.TxOut, error) {
	prevOuts := make([]*wire.TxOut, len(p.Inputs))
	for i := range p.Inputs {
		prevOut, err := p.PrevOut(i)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		prevOuts[i] = prevOut
	}

	return prevOuts, nil
}

func (p *Packet) signTaprootInput(index int, key *btcec.PrivateKey,
	allowed []txscript.SigHashType) error {

	in := &p.Inputs[index]

	hashType := in.SighashType.UnwrapOr(txscript.SigHashDefault)
	if err := checkSigHashAllowed(hashType, allowed); err != nil {
		return err
	}

	prevOuts, err := p.prevOuts()
	if err != nil {
		return err
	}

	engine := sighash.New(p.UnsignedTx)
	pubKey := key.PubKey().SerializeCompressed()
	xOnly := schnorr.SerializePubKey(key.PubKey())

	signed := false

	// The key path applies when the signer's key is the output key itself,
	// which is the case for a key already tweaked by the caller.
	script := prevOuts[index].PkScript
	if in.TaprootInternalKey != nil && payment.IsP2TR(script) &&
		bytes.Equal(script[2:], xOnly) {

		digest, err := engine.Taproot(index, prevOuts, hashType)
		if err != nil {
			return err
		}

		sig, err := schnorr.Sign(key, digest)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignFailed, err)
		}

		in.TaprootKeySpendSig = taprootSig(sig.Serialize(), hashType)
		signed = true

		log.Debugf("Signed taproot input %d on the key path", index)
	}

	for _, leaf := range in.TaprootLeafScript {
		if !payment.ContainsKey(leaf.Script, pubKey) {
			continue
		}

		leafHash := leaf.LeafHash()
		digest, err := engine.Taproot(
			index, prevOuts, hashType, sighash.WithLeafHash(leafHash),
		)
		if err != nil {
			return err
		}

		sig, err := schnorr.Sign(key, digest)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignFailed, err)
		}

		in.addTaprootScriptSig(&TaprootScriptSpendSig{
			XOnlyPubKey: xOnly,
			LeafHash:    bytes.Clone(leafHash[:]),
			Signature:   sig.Serialize(),
			SigHash:     hashType,
		})
		signed = true

		log.Debugf("Signed taproot input %d for leaf %v", index,
			leafHash)
	}

	if !signed {
		return fmt.Errorf("%w: key %x matches neither the output key "+
			"nor any leaf script", ErrSignFailed, xOnly)
	}

	return nil
}
