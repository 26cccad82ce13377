// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/psbtkit/pkg/btcunit"
	"github.com/btcsuite/psbtkit/pkg/payment"
)

const (
	// redeemP2TRInputSize is the size of a transaction input spending a
	// P2TR output, which carries no signature script.
	redeemP2TRInputSize = 32 + 4 + 1 + 4

	// redeemP2TRInputWitnessWeight is the weight of a key path witness with
	// a SIGHASH_DEFAULT signature: the item count, the length prefix and
	// the 64 byte schnorr signature.
	redeemP2TRInputWitnessWeight = 1 + 1 + 64
)

// ErrUnsupportedAddressType is returned for an address type the builder
// cannot spend.
var ErrUnsupportedAddressType = errors.New("unsupported address type")

// AddressType is the script type of an output the builder can spend.
type AddressType uint8

const (
	// PubKeyHash is a pay-to-pubkey-hash (P2PKH) output.
	PubKeyHash AddressType = iota

	// WitnessPubKey is a pay-to-witness-pubkey-hash (P2WPKH) output.
	WitnessPubKey

	// NestedWitnessPubKey is a P2WPKH output nested within P2SH.
	NestedWitnessPubKey

	// TaprootPubKey is a BIP86 pay-to-taproot (P2TR) output.
	TaprootPubKey
)

// String returns the short name of the address type.
func (a AddressType) String() string {
	switch a {
	case PubKeyHash:
		return "p2pkh"

	case WitnessPubKey:
		return "p2wpkh"

	case NestedWitnessPubKey:
		return "np2wpkh"

	case TaprootPubKey:
		return "p2tr"

	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAddressType parses the short name returned by String.
func ParseAddressType(s string) (AddressType, error) {
	for _, a := range []AddressType{
		PubKeyHash, WitnessPubKey, NestedWitnessPubKey, TaprootPubKey,
	} {
		if a.String() == s {
			return a, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAddressType, s)
}

// InputWeight returns the weight a spend of this address type adds to a
// transaction.
func (a AddressType) InputWeight() (btcunit.WeightUnit, error) {
	const scale = blockchain.WitnessScaleFactor

	switch a {
	case PubKeyHash:
		return btcunit.NewWeightUnit(
			txsizes.RedeemP2PKHInputSize * scale,
		), nil

	case WitnessPubKey:
		return btcunit.NewWeightUnit(
			txsizes.RedeemP2WPKHInputSize*scale +
				txsizes.RedeemP2WPKHInputWitnessWeight,
		), nil

	case NestedWitnessPubKey:
		return btcunit.NewWeightUnit(
			txsizes.RedeemNestedP2WPKHInputSize*scale +
				txsizes.RedeemP2WPKHInputWitnessWeight,
		), nil

	case TaprootPubKey:
		return btcunit.NewWeightUnit(
			redeemP2TRInputSize*scale + redeemP2TRInputWitnessWeight,
		), nil

	default:
		return btcunit.WeightUnit{}, fmt.Errorf("%w: %v",
			ErrUnsupportedAddressType, a)
	}
}

// IsWitness reports whether spending this address type needs a witness.
func (a AddressType) IsWitness() bool {
	return a != PubKeyHash
}

// Payment returns the output template this address type uses for the given
// compressed public key.
func (a AddressType) Payment(pubKey []byte) (payment.Payment, error) {
	switch a {
	case PubKeyHash:
		return payment.NewP2PKH(pubKey)

	case WitnessPubKey:
		return payment.NewP2WPKH(pubKey)

	case NestedWitnessPubKey:
		p2wpkh, err := payment.NewP2WPKH(pubKey)
		if err != nil {
			return nil, err
		}

		return payment.NewP2SH(p2wpkh), nil

	case TaprootPubKey:
		return payment.NewP2TR(pubKey)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddressType, a)
	}
}

// PkScript returns the output script this address type uses for the given
// compressed public key.
func (a AddressType) PkScript(pubKey []byte) ([]byte, error) {
	p, err := a.Payment(pubKey)
	if err != nil {
		return nil, err
	}

	return p.Script(), nil
}

// Address returns the address this address type uses for the given
// compressed public key on the given network.
func (a AddressType) Address(pubKey []byte,
	net *chaincfg.Params) (btcutil.Address, error) {

	p, err := a.Payment(pubKey)
	if err != nil {
		return nil, err
	}

	return p.Address(net)
}
