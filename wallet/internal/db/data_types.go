// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package db

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// AddressType specifies the script type of the output a stored UTXO pays to.
// The values are persisted, so new types must be appended.
type AddressType uint8

const (
	// PubKeyHash represents a pay-to-pubkey-hash (P2PKH) output.
	PubKeyHash AddressType = iota

	// WitnessPubKey represents a pay-to-witness-pubkey-hash (P2WKH) output.
	WitnessPubKey

	// NestedWitnessPubKey represents a P2WKH output nested within a P2SH
	// output.
	NestedWitnessPubKey

	// TaprootPubKey represents a BIP86 pay-to-taproot (P2TR) output.
	TaprootPubKey
)

// IsValid returns whether the address type is one the store knows.
func (a AddressType) IsValid() bool {
	return a <= TaprootPubKey
}

// UtxoInfo is the record kept for a spendable output.
type UtxoInfo struct {
	// OutPoint is the outpoint of the UTXO.
	OutPoint wire.OutPoint

	// Amount is the value of the UTXO.
	Amount btcutil.Amount

	// AddrType is the script type the UTXO pays to.
	AddrType AddressType

	// PkScript is the public key script of the UTXO.
	PkScript []byte

	// PubKey is the compressed public key that controls the UTXO.
	PubKey []byte
}
