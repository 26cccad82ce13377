// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sighash computes the digests that transaction signatures commit to
// for the legacy, BIP143 (segwit v0) and BIP341 (taproot) algorithms.
package sighash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrInputIndex is returned when the signing index is not an input of
	// the transaction.
	ErrInputIndex = errors.New("input index out of range")

	// ErrPrevOutCount is returned when the number of previous outputs
	// does not match the number of inputs.
	ErrPrevOutCount = errors.New("previous output count mismatch")

	// ErrSigHashSingleIndex is returned by the taproot digest when
	// SIGHASH_SINGLE is used on an input without a matching output.
	ErrSigHashSingleIndex = errors.New("sighash single without matching " +
		"output")

	// ErrInvalidHashType is returned for a taproot hash type outside the
	// set defined by BIP341.
	ErrInvalidHashType = errors.New("invalid sighash type")
)

// sigHashMask selects the output commitment bits of a hash type.
const sigHashMask = 0x1f

// oneHash is the legacy digest returned for an out of range input index and
// for SIGHASH_SINGLE without a matching output.
var oneHash = [chainhash.HashSize]byte{0x01}

// Engine computes signature digests for one transaction. The per-transaction
// midstates are hashed once on first use, so the transaction must not be
// modified while the Engine is in use.
type Engine struct {
	tx *wire.MsgTx

	// Single SHA256 of the serialized outpoints, sequences and outputs.
	// The segwit v0 midstates are the SHA256 of these.
	prevOuts  *[32]byte
	sequences *[32]byte
	outputs   *[32]byte
}

// New returns a digest engine for tx.
func New(tx *wire.MsgTx) *Engine {
	return &Engine{tx: tx}
}

func (e *Engine) prevOutsHash() [32]byte {
	if e.prevOuts == nil {
		var b bytes.Buffer
		for _, in := range e.tx.TxIn {
			writeOutPoint(&b, &in.PreviousOutPoint)
		}

		h := sha256.Sum256(b.Bytes())
		e.prevOuts = &h
	}

	return *e.prevOuts
}

func (e *Engine) sequencesHash() [32]byte {
	if e.sequences == nil {
		var b bytes.Buffer
		for _, in := range e.tx.TxIn {
			writeUint32(&b, in.Sequence)
		}

		h := sha256.Sum256(b.Bytes())
		e.sequences = &h
	}

	return *e.sequences
}

func (e *Engine) outputsHash() [32]byte {
	if e.outputs == nil {
		var b bytes.Buffer
		for _, out := range e.tx.TxOut {
			_ = wire.WriteTxOut(&b, 0, 0, out)
		}

		h := sha256.Sum256(b.Bytes())
		e.outputs = &h
	}

	return *e.outputs
}

// Legacy returns the original pre-segwit digest of input idx spending an
// output locked by script.
//
// An out of range index and SIGHASH_SINGLE without a matching output both
// yield the digest 0x01 followed by 31 zero bytes, which is what consensus
// commits to in those cases.
func (e *Engine) Legacy(idx int, script []byte,
	hashType txscript.SigHashType) ([]byte, error) {

	tx := e.tx
	if idx < 0 || idx >= len(tx.TxIn) {
		log.Debugf("Legacy digest for out of range input %d", idx)
		return bytes.Clone(oneHash[:]), nil
	}

	outType := hashType & sigHashMask
	if outType == txscript.SigHashSingle && idx >= len(tx.TxOut) {
		return bytes.Clone(oneHash[:]), nil
	}

	script = removeCodeSeparators(script)

	txCopy := &wire.MsgTx{
		Version:  tx.Version,
		LockTime: tx.LockTime,
		TxIn:     make([]*wire.TxIn, len(tx.TxIn)),
		TxOut:    tx.TxOut,
	}
	for i, in := range tx.TxIn {
		copied := &wire.TxIn{
			PreviousOutPoint: in.PreviousOutPoint,
			Sequence:         in.Sequence,
		}
		if i == idx {
			copied.SignatureScript = script
		}
		txCopy.TxIn[i] = copied
	}

	switch outType {
	case txscript.SigHashNone:
		txCopy.TxOut = nil
		zeroOtherSequences(txCopy, idx)

	case txscript.SigHashSingle:
		txCopy.TxOut = make([]*wire.TxOut, idx+1)
		for i := 0; i < idx; i++ {
			txCopy.TxOut[i] = &wire.TxOut{Value: -1}
		}
		txCopy.TxOut[idx] = tx.TxOut[idx]
		zeroOtherSequences(txCopy, idx)
	}

	if hashType&txscript.SigHashAnyOneCanPay != 0 {
		txCopy.TxIn = txCopy.TxIn[idx : idx+1]
	}

	var b bytes.Buffer
	b.Grow(txCopy.SerializeSizeStripped() + 4)
	if err := txCopy.SerializeNoWitness(&b); err != nil {
		return nil, err
	}
	writeUint32(&b, uint32(hashType))

	return chainhash.DoubleHashB(b.Bytes()), nil
}

// WitnessV0 returns the BIP143 digest of input idx. For P2WPKH the script
// is the P2PKH script of the key hash; for P2WSH it is the witness script.
func (e *Engine) WitnessV0(idx int, script []byte, value int64,
	hashType txscript.SigHashType) ([]byte, error) {

	tx := e.tx
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInputIndex, idx,
			len(tx.TxIn))
	}

	outType := hashType & sigHashMask
	anyoneCanPay := hashType&txscript.SigHashAnyOneCanPay != 0

	var (
		zero         [32]byte
		hashPrevOuts = zero
		hashSequence = zero
		hashOutputs  = zero
	)

	if !anyoneCanPay {
		single := e.prevOutsHash()
		hashPrevOuts = sha256.Sum256(single[:])
	}

	if !anyoneCanPay && outType != txscript.SigHashSingle &&
		outType != txscript.SigHashNone {

		single := e.sequencesHash()
		hashSequence = sha256.Sum256(single[:])
	}

	switch {
	case outType != txscript.SigHashSingle &&
		outType != txscript.SigHashNone:

		single := e.outputsHash()
		hashOutputs = sha256.Sum256(single[:])

	case outType == txscript.SigHashSingle && idx < len(tx.TxOut):
		var b bytes.Buffer
		_ = wire.WriteTxOut(&b, 0, 0, tx.TxOut[idx])
		hashOutputs = chainhash.DoubleHashH(b.Bytes())
	}

	in := tx.TxIn[idx]

	var b bytes.Buffer
	writeUint32(&b, uint32(tx.Version))
	b.Write(hashPrevOuts[:])
	b.Write(hashSequence[:])
	writeOutPoint(&b, &in.PreviousOutPoint)
	_ = wire.WriteVarBytes(&b, 0, script)
	writeUint64(&b, uint64(value))
	writeUint32(&b, in.Sequence)
	b.Write(hashOutputs[:])
	writeUint32(&b, tx.LockTime)
	writeUint32(&b, uint32(hashType))

	return chainhash.DoubleHashB(b.Bytes()), nil
}

func zeroOtherSequences(tx *wire.MsgTx, idx int) {
	for i, in := range tx.TxIn {
		if i != idx {
			in.Sequence = 0
		}
	}
}

// removeCodeSeparators strips every OP_CODESEPARATOR from script. Scripts
// without one are returned unchanged.
func removeCodeSeparators(script []byte) []byte {
	var (
		result     []byte
		prevOffset int32
	)

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if tokenizer.Opcode() == txscript.OP_CODESEPARATOR {
			if result == nil {
				result = make([]byte, 0, len(script))
				result = append(result, script[:prevOffset]...)
			}
		} else if result != nil {
			result = append(result,
				script[prevOffset:tokenizer.ByteIndex()]...)
		}
		prevOffset = tokenizer.ByteIndex()
	}

	if result == nil {
		return script
	}

	return result
}

func writeOutPoint(b *bytes.Buffer, op *wire.OutPoint) {
	b.Write(op.Hash[:])
	writeUint32(b, op.Index)
}

func writeUint32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func writeUint64(b *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Write(buf[:])
}
