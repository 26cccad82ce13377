// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txwire implements the raw transaction model used throughout psbtkit.
//
// Transactions are represented by wire.MsgTx. This package adds strict
// decoding (a byte slice must hold exactly one transaction), the BIP141 size
// metrics, and the codecs for the smaller wire structures that travel inside a
// PSBT: a single transaction output and a serialized witness stack.
package txwire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrTrailingBytes is returned when a buffer holds more bytes than the
	// structure being decoded from it.
	ErrTrailingBytes = errors.New("unexpected trailing bytes")

	// ErrMalformedTx is returned when a raw transaction cannot be decoded.
	ErrMalformedTx = errors.New("malformed transaction")

	// ErrMalformedTxOut is returned when a serialized transaction output
	// cannot be decoded.
	ErrMalformedTxOut = errors.New("malformed transaction output")

	// ErrMalformedWitness is returned when a serialized witness stack
	// cannot be decoded.
	ErrMalformedWitness = errors.New("malformed witness stack")
)

// Decode parses a raw transaction in the consensus encoding. The witness
// marker and flag are detected automatically. The whole buffer must be
// consumed.
func Decode(raw []byte) (*wire.MsgTx, error) {
	return decode(raw, (*wire.MsgTx).Deserialize)
}

// DecodeNoWitness parses a raw transaction that is known to carry no witness
// data. This is the form used for the unsigned transaction inside a PSBT,
// where a transaction without inputs would otherwise be mistaken for a witness
// marker.
func DecodeNoWitness(raw []byte) (*wire.MsgTx, error) {
	return decode(raw, (*wire.MsgTx).DeserializeNoWitness)
}

func decode(raw []byte,
	deserialize func(*wire.MsgTx, io.Reader) error) (*wire.MsgTx, error) {

	r := bytes.NewReader(raw)

	tx := &wire.MsgTx{}
	if err := deserialize(tx, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTx, err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after transaction",
			ErrTrailingBytes, r.Len())
	}

	return tx, nil
}

// DecodeHex parses a hex encoded raw transaction.
func DecodeHex(s string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTx, err)
	}

	return Decode(raw)
}

// Encode serializes the transaction in the consensus encoding, including the
// witness section when any input carries a witness.
func Encode(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())

	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EncodeNoWitness serializes the transaction without its witness section.
func EncodeNoWitness(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSizeStripped())

	if err := tx.SerializeNoWitness(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EncodeHex serializes the transaction and returns it hex encoded.
func EncodeHex(tx *wire.MsgTx) (string, error) {
	raw, err := Encode(tx)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(raw), nil
}

// DecodeTxOut parses a single serialized transaction output: an 8-byte
// little-endian value followed by a varint-prefixed locking script.
func DecodeTxOut(raw []byte) (*wire.TxOut, error) {
	r := bytes.NewReader(raw)

	var value [8]byte
	if _, err := io.ReadFull(r, value[:]); err != nil {
		return nil, fmt.Errorf("%w: value: %w", ErrMalformedTxOut, err)
	}

	pkScript, err := wire.ReadVarBytes(
		r, 0, wire.MaxMessagePayload, "pkScript",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: script: %w", ErrMalformedTxOut, err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after output",
			ErrTrailingBytes, r.Len())
	}

	return &wire.TxOut{
		Value:    int64(binary.LittleEndian.Uint64(value[:])),
		PkScript: pkScript,
	}, nil
}

// EncodeTxOut serializes a single transaction output.
func EncodeTxOut(txOut *wire.TxOut) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(txOut.SerializeSize())

	if err := wire.WriteTxOut(&buf, 0, 0, txOut); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ParseWitness parses a serialized witness stack: a varint item count followed
// by that many varint-prefixed items.
func ParseWitness(raw []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(raw)

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %w", ErrMalformedWitness, err)
	}

	// Every item takes at least one byte for its length prefix, so a count
	// larger than the remaining buffer can never be satisfied.
	if count > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d items in %d bytes",
			ErrMalformedWitness, count, r.Len())
	}

	witness := make(wire.TxWitness, count)
	for i := range witness {
		item, err := wire.ReadVarBytes(
			r, 0, wire.MaxMessagePayload, "witness item",
		)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w",
				ErrMalformedWitness, i, err)
		}

		witness[i] = item
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after witness",
			ErrTrailingBytes, r.Len())
	}

	return witness, nil
}

// SerializeWitness serializes a witness stack as a varint item count followed
// by the varint-prefixed items.
func SerializeWitness(witness wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(witness.SerializeSize())

	err := wire.WriteVarInt(&buf, 0, uint64(len(witness)))
	if err != nil {
		return nil, err
	}

	for _, item := range witness {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
