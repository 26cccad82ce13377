// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txwire

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/btcunit"
)

// HasWitness reports whether any input of the transaction carries a non-empty
// witness stack. Only such transactions are serialized with the segwit marker.
func HasWitness(tx *wire.MsgTx) bool {
	return tx.HasWitness()
}

// BaseSize returns the serialized size of the transaction without witness
// data.
func BaseSize(tx *wire.MsgTx) int {
	return tx.SerializeSizeStripped()
}

// TotalSize returns the serialized size of the transaction including the
// marker, flag and witness data when present.
func TotalSize(tx *wire.MsgTx) int {
	return tx.SerializeSize()
}

// Weight returns the BIP141 weight of the transaction:
// 3 * base size + total size.
func Weight(tx *wire.MsgTx) btcunit.WeightUnit {
	return btcunit.WeightFromSizes(BaseSize(tx), TotalSize(tx))
}

// VirtualSize returns the virtual size of the transaction, which is its
// weight divided by four, rounded up.
func VirtualSize(tx *wire.MsgTx) uint64 {
	return Weight(tx).ToVB().Ceil()
}
