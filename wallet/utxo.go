// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/payment"
	"github.com/btcsuite/psbtkit/pkg/psbt"
)

// Utxo is a spendable output together with what is needed to sign for it.
type Utxo struct {
	// OutPoint is the outpoint of the UTXO.
	OutPoint wire.OutPoint

	// Amount is the value of the UTXO.
	Amount btcutil.Amount

	// AddrType is the script type the UTXO pays to.
	AddrType AddressType

	// PkScript is the output script of the UTXO.
	PkScript []byte

	// PubKey is the compressed public key that controls the UTXO.
	PubKey []byte
}

// pInput returns the PSBT input fields for spending the UTXO: the witness
// UTXO, the x-only internal key for taproot and the P2WPKH redeem script for
// nested segwit.
func (u *Utxo) pInput() (psbt.PInput, error) {
	in := psbt.PInput{
		WitnessUtxo: wire.NewTxOut(
			int64(u.Amount), bytes.Clone(u.PkScript),
		),
	}

	switch u.AddrType {
	case TaprootPubKey:
		xOnly := payment.ToXOnly(u.PubKey)
		if xOnly == nil {
			return psbt.PInput{}, fmt.Errorf("%w: utxo %v has a "+
				"%d byte public key", payment.ErrInvalidPubKey,
				u.OutPoint, len(u.PubKey))
		}
		in.TaprootInternalKey = bytes.Clone(xOnly)

	case NestedWitnessPubKey:
		redeem, err := payment.NewP2WPKH(u.PubKey)
		if err != nil {
			return psbt.PInput{}, fmt.Errorf("utxo %v: %w",
				u.OutPoint, err)
		}
		in.RedeemScript = redeem.Script()

	case PubKeyHash, WitnessPubKey:

	default:
		return psbt.PInput{}, fmt.Errorf("%w: %v",
			ErrUnsupportedAddressType, u.AddrType)
	}

	return in, nil
}
