// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMagic is returned when a serialized packet does not start
	// with the magic bytes 0x70736274ff.
	ErrInvalidMagic = errors.New("invalid psbt magic")

	// ErrDuplicateKey is returned when the same key appears twice in one
	// map.
	ErrDuplicateKey = errors.New("duplicate key in map")

	// ErrMultipleUnsignedTx is returned when the global map carries more
	// than one unsigned transaction.
	ErrMultipleUnsignedTx = errors.New("multiple unsigned transactions")

	// ErrMissingUnsignedTx is returned when the global map carries no
	// unsigned transaction.
	ErrMissingUnsignedTx = errors.New("missing unsigned transaction")

	// ErrDuplicateField is returned when a single valued field appears
	// more than once in a map.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrInvalidKeyData is returned when the key data of a field has the
	// wrong length or encoding for its type.
	ErrInvalidKeyData = errors.New("invalid key data")

	// ErrInvalidValue is returned when the value of a field cannot be
	// decoded.
	ErrInvalidValue = errors.New("invalid field value")

	// ErrUnsignedTxHasScripts is returned when an input of the unsigned
	// transaction carries a signature script or witness.
	ErrUnsignedTxHasScripts = errors.New("unsigned transaction has " +
		"input scripts")

	// ErrInputCountMismatch is returned when the number of input maps does
	// not match the number of transaction inputs.
	ErrInputCountMismatch = errors.New("input count mismatch")

	// ErrOutputCountMismatch is returned when the number of output maps
	// does not match the number of transaction outputs.
	ErrOutputCountMismatch = errors.New("output count mismatch")

	// ErrIndexOutOfBounds is returned when an input index is not part of
	// the packet.
	ErrIndexOutOfBounds = errors.New("input index out of bounds")

	// ErrMissingUtxoInfo is returned when an input has neither a witness
	// nor a non-witness UTXO.
	ErrMissingUtxoInfo = errors.New("missing utxo information")

	// ErrMissingRedeemScript is returned when a P2SH input has no redeem
	// script.
	ErrMissingRedeemScript = errors.New("p2sh input missing redeem script")

	// ErrMissingWitnessScript is returned when a P2WSH or P2SH-P2WSH input
	// has no witness script.
	ErrMissingWitnessScript = errors.New("p2wsh input missing witness " +
		"script")

	// ErrSigHashMismatch is returned when the sighash type of an input is
	// not in the caller's allow-list.
	ErrSigHashMismatch = errors.New("sighash type not allowed")

	// ErrCannotFinalize is returned when an input has no usable signature
	// data to build its final scripts from.
	ErrCannotFinalize = errors.New("cannot finalize input")

	// ErrNonWitnessUtxoMismatch is returned when the non-witness UTXO of
	// an input is not the transaction its outpoint refers to.
	ErrNonWitnessUtxoMismatch = errors.New("non-witness utxo does not " +
		"match outpoint")

	// ErrSignFailed is returned when no signature could be produced for an
	// input with the given key.
	ErrSignFailed = errors.New("sign failed")

	// ErrIncomplete is returned by callers that require every input of a
	// packet to be finalized before its transaction is used.
	ErrIncomplete = errors.New("psbt is not fully finalized")
)

// MapKind identifies one of the three kinds of key-value map in a packet.
type MapKind uint8

const (
	// MapGlobal is the single global map.
	MapGlobal MapKind = iota

	// MapInput is a per-input map.
	MapInput

	// MapOutput is a per-output map.
	MapOutput
)

// String returns the name of the map kind.
func (m MapKind) String() string {
	switch m {
	case MapGlobal:
		return "global"
	case MapInput:
		return "input"
	case MapOutput:
		return "output"
	default:
		return "unknown"
	}
}

// FieldError describes a field that could not be decoded, together with the
// raw bytes that caused it.
type FieldError struct {
	// Map is the kind of map the field was found in.
	Map MapKind

	// Index is the input or output index. It is zero for the global map.
	Index int

	// KeyType is the first byte of the key.
	KeyType byte

	// Key is the full key, including the type byte.
	Key []byte

	// Value is the raw value.
	Value []byte

	// Err is the underlying error, usually one of the package sentinels.
	Err error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if e.Map == MapGlobal {
		return fmt.Sprintf("global field %#02x: %v", e.KeyType, e.Err)
	}

	return fmt.Sprintf("%v %d field %#02x: %v", e.Map, e.Index, e.KeyType,
		e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}
