// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/psbt"
)

var (
	// ErrNilPacket is returned when signing or finalizing without a
	// packet.
	ErrNilPacket = errors.New("nil psbt packet")

	// ErrPubKeyMismatch is returned when the signing key does not match
	// the public key a ToSignInput expects.
	ErrPubKeyMismatch = errors.New("signing key does not match input")
)

// ToSignInput names an input to sign and how to sign it.
type ToSignInput struct {
	// Index is the input index in the packet.
	Index int

	// PubKey is the public key the input is expected to be signed with,
	// in compressed or x-only form. A nil key skips the check.
	PubKey []byte

	// SigHashTypes restricts the sighash types the input may request. An
	// empty list accepts any type.
	SigHashTypes []txscript.SigHashType

	// DisableTweakSigner signs a taproot input with the key as given
	// instead of the BIP86 tweaked key. Script path spends need this.
	DisableTweakSigner bool
}

// SignPsbtParams encapsulates the arguments for signing a PSBT.
type SignPsbtParams struct {
	// Packet is the PSBT to be signed.
	Packet *psbt.Packet

	// Inputs lists the inputs to sign, in signing order.
	Inputs []ToSignInput

	// AutoFinalize finalizes the listed inputs once all of them are
	// signed.
	AutoFinalize bool
}

// SignPsbtResult encapsulates the result of a PSBT signing operation.
type SignPsbtResult struct {
	// SignedInputs contains the indices of the inputs that were
	// successfully signed.
	SignedInputs []uint32

	// Packet is the modified PSBT packet. This is the same pointer as
	// passed in the params, returned for convenience.
	Packet *psbt.Packet
}

// matchesKey reports whether expected names key, in either compressed or
// x-only form.
func matchesKey(expected []byte, key *btcec.PublicKey) bool {
	switch len(expected) {
	case 0:
		return true

	case schnorr.PubKeyBytesLen:
		return bytes.Equal(expected, schnorr.SerializePubKey(key))

	default:
		return bytes.Equal(expected, key.SerializeCompressed())
	}
}

// signerFor returns the key that signs input opt.Index. Taproot inputs are
// signed with the key tweaked by the input's merkle root, or by nothing for a
// BIP86 output, unless the caller asked for the untweaked key.
func signerFor(packet *psbt.Packet, key *btcec.PrivateKey,
	opt *ToSignInput) *btcec.PrivateKey {

	if opt.DisableTweakSigner || !packet.IsTaprootInput(opt.Index) {
		return key
	}

	root := packet.Inputs[opt.Index].TaprootMerkleRoot

	return txscript.TweakTaprootPrivKey(*key, root)
}

// SignPsbt signs the listed inputs of a packet with key.
//
// Each input is signed with the policy of its ToSignInput. Inputs that are
// already finalized are skipped and left out of SignedInputs. With
// AutoFinalize set, the listed inputs are finalized after all of them are
// signed, so the packet is ready for extraction when the list covers every
// input.
func SignPsbt(key *btcec.PrivateKey, params *SignPsbtParams) (
	*SignPsbtResult, error) {

	if params == nil || params.Packet == nil {
		return nil, ErrNilPacket
	}
	packet := params.Packet

	result := &SignPsbtResult{Packet: packet}
	for i := range params.Inputs {
		opt := &params.Inputs[i]

		if opt.Index < 0 || opt.Index >= len(packet.Inputs) {
			return nil, fmt.Errorf("%w: input %d of %d",
				psbt.ErrIndexOutOfBounds, opt.Index,
				len(packet.Inputs))
		}

		if !matchesKey(opt.PubKey, key.PubKey()) {
			return nil, fmt.Errorf("%w: input %d expects %x",
				ErrPubKeyMismatch, opt.Index, opt.PubKey)
		}

		if packet.Inputs[opt.Index].IsFinalized() {
			log.Debugf("Skipping finalized input %d", opt.Index)
			continue
		}

		signer := signerFor(packet, key, opt)
		err := packet.SignInput(opt.Index, signer, opt.SigHashTypes)
		if err != nil {
			return nil, fmt.Errorf("sign input %d: %w", opt.Index,
				err)
		}

		result.SignedInputs = append(
			result.SignedInputs, uint32(opt.Index),
		)
	}

	if params.AutoFinalize {
		for _, opt := range params.Inputs {
			if err := packet.FinalizeInput(opt.Index); err != nil {
				return nil, fmt.Errorf("finalize input %d: %w",
					opt.Index, err)
			}
		}
	}

	log.Debugf("Signed inputs %v (finalize=%v)", result.SignedInputs,
		params.AutoFinalize)

	return result, nil
}

// FinalizePsbt finalizes every input of the packet.
func FinalizePsbt(packet *psbt.Packet) error {
	if packet == nil {
		return ErrNilPacket
	}

	return packet.FinalizeAllInputs()
}

// ExtractTx returns the network transaction of a fully finalized packet.
// Unlike psbt.Packet.Extract, which leaves unfinalized inputs empty, it
// refuses with psbt.ErrIncomplete while any input still lacks its final
// scripts, so the result is always ready to broadcast.
func ExtractTx(packet *psbt.Packet) (*wire.MsgTx, error) {
	if packet == nil {
		return nil, ErrNilPacket
	}

	var missing []int
	for i := range packet.Inputs {
		if !packet.Inputs[i].IsFinalized() {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: inputs %v not finalized",
			psbt.ErrIncomplete, missing)
	}

	tx, err := packet.Extract()
	if err != nil {
		return nil, err
	}

	log.Debugf("Extracted transaction %v", tx.TxHash())

	return tx, nil
}

// UtxoToSign returns the ToSignInput of a packet input that spends one of the
// given UTXOs, matched by outpoint. Inputs spending other outputs are left
// out.
func UtxoToSign(packet *psbt.Packet, utxos []Utxo) []ToSignInput {
	byOutPoint := make(map[wire.OutPoint]*Utxo, len(utxos))
	for i := range utxos {
		byOutPoint[utxos[i].OutPoint] = &utxos[i]
	}

	var toSign []ToSignInput
	for i, txIn := range packet.UnsignedTx.TxIn {
		u, ok := byOutPoint[txIn.PreviousOutPoint]
		if !ok {
			continue
		}

		toSign = append(toSign, ToSignInput{
			Index:  i,
			PubKey: bytes.Clone(u.PubKey),
		})
	}

	return toSign
}
