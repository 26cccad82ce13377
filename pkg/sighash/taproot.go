// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sighash

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// annexTag is the first byte of a taproot annex.
	annexTag = 0x50

	// codeSeparatorNone is the code separator position committed to when
	// no OP_CODESEPARATOR was executed.
	codeSeparatorNone = 0xffffffff
)

// ErrInvalidAnnex is returned for an annex that does not start with 0x50.
var ErrInvalidAnnex = errors.New("annex must start with 0x50")

type taprootOptions struct {
	annex    []byte
	leafHash *chainhash.Hash
}

// TaprootOption modifies a taproot digest.
type TaprootOption func(*taprootOptions)

// WithAnnex commits the digest to the given annex, including its 0x50 tag.
func WithAnnex(annex []byte) TaprootOption {
	return func(o *taprootOptions) {
		o.annex = annex
	}
}

// WithLeafHash makes the digest a script path digest for the leaf with the
// given tap leaf hash.
func WithLeafHash(leafHash chainhash.Hash) TaprootOption {
	return func(o *taprootOptions) {
		o.leafHash = &leafHash
	}
}

// isValidTaprootHashType reports whether t is one of the BIP341 hash types.
func isValidTaprootHashType(t txscript.SigHashType) bool {
	switch t {
	case txscript.SigHashDefault, txscript.SigHashAll,
		txscript.SigHashNone, txscript.SigHashSingle,
		txscript.SigHashAll | txscript.SigHashAnyOneCanPay,
		txscript.SigHashNone | txscript.SigHashAnyOneCanPay,
		txscript.SigHashSingle | txscript.SigHashAnyOneCanPay:

		return true

	default:
		return false
	}
}

// Taproot returns the BIP341 digest of input idx. prevOuts holds the output
// spent by every input of the transaction, in input order. Without options
// the digest is for a key path spend.
func (e *Engine) Taproot(idx int, prevOuts []*wire.TxOut,
	hashType txscript.SigHashType, opts ...TaprootOption) ([]byte, error) {

	tx := e.tx
	if len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d previous outputs for %d inputs",
			ErrPrevOutCount, len(prevOuts), len(tx.TxIn))
	}

	for i, out := range prevOuts {
		if out == nil {
			return nil, fmt.Errorf("%w: no previous output for "+
				"input %d", ErrPrevOutCount, i)
		}
	}

	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInputIndex, idx,
			len(tx.TxIn))
	}

	if !isValidTaprootHashType(hashType) {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidHashType, hashType)
	}

	var o taprootOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.annex != nil && (len(o.annex) == 0 || o.annex[0] != annexTag) {
		return nil, ErrInvalidAnnex
	}

	outType := hashType & 0x03
	if hashType == txscript.SigHashDefault {
		outType = txscript.SigHashAll
	}
	anyoneCanPay := hashType&txscript.SigHashAnyOneCanPay != 0

	if outType == txscript.SigHashSingle && idx >= len(tx.TxOut) {
		return nil, fmt.Errorf("%w: input %d, %d outputs",
			ErrSigHashSingleIndex, idx, len(tx.TxOut))
	}

	var b bytes.Buffer

	// Epoch.
	b.WriteByte(0x00)

	b.WriteByte(byte(hashType))
	writeUint32(&b, uint32(tx.Version))
	writeUint32(&b, tx.LockTime)

	if !anyoneCanPay {
		prevOutsHash := e.prevOutsHash()
		amountsHash, scriptsHash := prevOutCommitments(prevOuts)
		sequencesHash := e.sequencesHash()

		b.Write(prevOutsHash[:])
		b.Write(amountsHash[:])
		b.Write(scriptsHash[:])
		b.Write(sequencesHash[:])
	}

	if outType != txscript.SigHashNone &&
		outType != txscript.SigHashSingle {

		outputsHash := e.outputsHash()
		b.Write(outputsHash[:])
	}

	var spendType byte
	if o.leafHash != nil {
		spendType |= 0x02
	}
	if o.annex != nil {
		spendType |= 0x01
	}
	b.WriteByte(spendType)

	if anyoneCanPay {
		in := tx.TxIn[idx]
		writeOutPoint(&b, &in.PreviousOutPoint)
		_ = wire.WriteTxOut(&b, 0, 0, prevOuts[idx])
		writeUint32(&b, in.Sequence)
	} else {
		writeUint32(&b, uint32(idx))
	}

	if o.annex != nil {
		var annex bytes.Buffer
		_ = wire.WriteVarBytes(&annex, 0, o.annex)
		h := sha256.Sum256(annex.Bytes())
		b.Write(h[:])
	}

	if outType == txscript.SigHashSingle {
		var out bytes.Buffer
		_ = wire.WriteTxOut(&out, 0, 0, tx.TxOut[idx])
		h := sha256.Sum256(out.Bytes())
		b.Write(h[:])
	}

	if o.leafHash != nil {
		b.Write(o.leafHash[:])

		// Key version.
		b.WriteByte(0x00)
		writeUint32(&b, codeSeparatorNone)
	}

	digest := chainhash.TaggedHash(chainhash.TagTapSighash, b.Bytes())

	return digest[:], nil
}

// prevOutCommitments returns the single SHA256 of the spent amounts and of
// the length prefixed spent scripts.
func prevOutCommitments(prevOuts []*wire.TxOut) ([32]byte, [32]byte) {
	var amounts, scripts bytes.Buffer
	for _, out := range prevOuts {
		writeUint64(&amounts, uint64(out.Value))
		_ = wire.WriteVarBytes(&scripts, 0, out.PkScript)
	}

	return sha256.Sum256(amounts.Bytes()), sha256.Sum256(scripts.Bytes())
}
