package kvdb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/wallet/internal/db"
)

const (
	// outPointKeySize is the size of a serialized outpoint key: the
	// transaction hash followed by the big-endian output index.
	outPointKeySize = chainhash.HashSize + 4

	// maxScriptSize bounds the scripts read back from a record.
	maxScriptSize = 10_000

	// maxPubKeySize bounds the public key read back from a record.
	maxPubKeySize = 65
)

// byteOrder is the byte order of integers in records.
var byteOrder = binary.BigEndian

// outPointKey serializes an outpoint into a bucket key.
func outPointKey(op wire.OutPoint) []byte {
	key := make([]byte, outPointKeySize)
	copy(key, op.Hash[:])
	byteOrder.PutUint32(key[chainhash.HashSize:], op.Index)

	return key
}

// seqKey serializes a sequence number into a bucket key. Big-endian keys make
// the bucket's byte order the insertion order.
func seqKey(seq uint64) []byte {
	var key [8]byte
	byteOrder.PutUint64(key[:], seq)

	return key[:]
}

// serializeUtxo encodes a record as:
//
//	outpoint (36) | amount (8) | addr type (1) | var pkScript | var pubKey
func serializeUtxo(utxo *db.UtxoInfo) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(outPointKey(utxo.OutPoint))

	var amount [8]byte
	byteOrder.PutUint64(amount[:], uint64(utxo.Amount))
	buf.Write(amount[:])

	buf.WriteByte(byte(utxo.AddrType))

	if err := wire.WriteVarBytes(&buf, 0, utxo.PkScript); err != nil {
		return nil, err
	}
	if err := wire.WriteVarBytes(&buf, 0, utxo.PubKey); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// deserializeUtxo decodes a record written by serializeUtxo.
func deserializeUtxo(v []byte) (*db.UtxoInfo, error) {
	if len(v) < outPointKeySize+8+1 {
		return nil, db.NewError(db.ErrCorruptRecord,
			fmt.Sprintf("utxo record too short: %d bytes", len(v)), nil)
	}

	var utxo db.UtxoInfo
	copy(utxo.OutPoint.Hash[:], v[:chainhash.HashSize])
	utxo.OutPoint.Index = byteOrder.Uint32(v[chainhash.HashSize:])

	offset := outPointKeySize
	utxo.Amount = btcutil.Amount(byteOrder.Uint64(v[offset:]))
	offset += 8

	utxo.AddrType = db.AddressType(v[offset])
	if !utxo.AddrType.IsValid() {
		return nil, db.NewError(db.ErrCorruptRecord,
			fmt.Sprintf("unknown address type %d", v[offset]), nil)
	}
	offset++

	r := bytes.NewReader(v[offset:])

	var err error
	utxo.PkScript, err = wire.ReadVarBytes(
		r, 0, maxScriptSize, "pkScript",
	)
	if err != nil {
		return nil, db.NewError(db.ErrCorruptRecord, "read pkScript", err)
	}

	utxo.PubKey, err = wire.ReadVarBytes(r, 0, maxPubKeySize, "pubKey")
	if err != nil {
		return nil, db.NewError(db.ErrCorruptRecord, "read pubKey", err)
	}

	if r.Len() != 0 {
		return nil, db.NewError(db.ErrCorruptRecord,
			fmt.Sprintf("%d trailing bytes in utxo record", r.Len()),
			nil)
	}

	return &utxo, nil
}
