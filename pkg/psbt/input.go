// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/txwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// controlBlockBaseSize is the size of a control block for a tree with
	// a single leaf.
	controlBlockBaseSize = 33

	// controlBlockNodeSize is the size of each merkle path element.
	controlBlockNodeSize = 32

	// maxControlBlockSize is the size of a control block at the maximum
	// tree depth of 128.
	maxControlBlockSize = controlBlockBaseSize + 128*controlBlockNodeSize
)

// inputDecoder decodes an input map.
type inputDecoder struct {
	in *PInput
}

func (d *inputDecoder) singleValued(keyType byte) bool {
	switch keyType {
	case InputNonWitnessUtxoType, InputWitnessUtxoType, InputSighashType,
		InputRedeemScriptType, InputWitnessScriptType,
		InputFinalScriptSigType, InputFinalScriptWitnessType,
		InputPorCommitmentType, InputTapKeySigType,
		InputTapInternalKeyType, InputTapMerkleRootType:

		return true

	default:
		return false
	}
}

// checkTaprootSig checks the length of a schnorr signature with an optional
// sighash byte.
func checkTaprootSig(sig []byte) error {
	if len(sig) != schnorr.SignatureSize &&
		len(sig) != schnorr.SignatureSize+1 {

		return fmt.Errorf("%w: taproot signature of %d bytes",
			ErrInvalidValue, len(sig))
	}

	// SIGHASH_DEFAULT is only ever implied by a 64-byte signature.
	if len(sig) == schnorr.SignatureSize+1 &&
		sig[schnorr.SignatureSize] == byte(txscript.SigHashDefault) {

		return fmt.Errorf("%w: explicit default sighash byte",
			ErrInvalidValue)
	}

	return nil
}

// checkControlBlock checks the length of a control block.
func checkControlBlock(cb []byte) error {
	if len(cb) < controlBlockBaseSize || len(cb) > maxControlBlockSize ||
		(len(cb)-controlBlockBaseSize)%controlBlockNodeSize != 0 {

		return fmt.Errorf("%w: control block of %d bytes",
			ErrInvalidKeyData, len(cb))
	}

	return nil
}

func (d *inputDecoder) decodeField(keyType byte, keyData,
	value []byte) error {

	in := d.in

	switch keyType {
	case InputNonWitnessUtxoType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}

		tx, err := txwire.Decode(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		in.NonWitnessUtxo = tx

	case InputWitnessUtxoType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}

		txOut, err := txwire.DecodeTxOut(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		in.WitnessUtxo = txOut

	case InputPartialSigType:
		if err := checkPubKey(keyData); err != nil {
			return err
		}
		if len(value) == 0 {
			return fmt.Errorf("%w: empty signature", ErrInvalidValue)
		}

		in.PartialSigs = append(in.PartialSigs, &PartialSig{
			PubKey:    bytes.Clone(keyData),
			Signature: value,
		})

	case InputSighashType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if len(value) != 4 {
			return fmt.Errorf("%w: sighash type of %d bytes",
				ErrInvalidValue, len(value))
		}

		in.SighashType = fn.Some(txscript.SigHashType(
			binary.LittleEndian.Uint32(value),
		))

	case InputRedeemScriptType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		in.RedeemScript = value

	case InputWitnessScriptType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		in.WitnessScript = value

	case InputBip32DerivationType:
		derivation, err := parseBip32Derivation(keyData, value)
		if err != nil {
			return err
		}
		in.Bip32Derivation = append(in.Bip32Derivation, derivation)

	case InputFinalScriptSigType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		in.FinalScriptSig = value

	case InputFinalScriptWitnessType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}

		witness, err := txwire.ParseWitness(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		in.FinalScriptWitness = witness

	case InputPorCommitmentType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if !utf8.Valid(value) {
			return fmt.Errorf("%w: commitment is not utf-8",
				ErrInvalidValue)
		}
		in.PorCommitment = fn.Some(string(value))

	case InputTapKeySigType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if err := checkTaprootSig(value); err != nil {
			return err
		}
		in.TaprootKeySpendSig = value

	case InputTapScriptSigType:
		if len(keyData) != 64 {
			return fmt.Errorf("%w: script sig key of %d bytes",
				ErrInvalidKeyData, len(keyData))
		}
		if err := checkXOnlyKey(keyData[:32]); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidKeyData, err)
		}
		if err := checkTaprootSig(value); err != nil {
			return err
		}

		sig := &TaprootScriptSpendSig{
			XOnlyPubKey: bytes.Clone(keyData[:32]),
			LeafHash:    bytes.Clone(keyData[32:]),
			Signature:   value[:schnorr.SignatureSize],
			SigHash:     txscript.SigHashDefault,
		}
		if len(value) == schnorr.SignatureSize+1 {
			sig.SigHash = txscript.SigHashType(value[64])
		}
		in.TaprootScriptSpendSig = append(in.TaprootScriptSpendSig, sig)

	case InputTapLeafScriptType:
		if err := checkControlBlock(keyData); err != nil {
			return err
		}
		if len(value) == 0 {
			return fmt.Errorf("%w: leaf script without version",
				ErrInvalidValue)
		}

		in.TaprootLeafScript = append(in.TaprootLeafScript,
			&TaprootTapLeafScript{
				ControlBlock: bytes.Clone(keyData),
				Script:       value[:len(value)-1],
				LeafVersion: txscript.TapscriptLeafVersion(
					value[len(value)-1],
				),
			})

	case InputTapBip32DerivationType:
		derivation, err := parseTaprootBip32Derivation(keyData, value)
		if err != nil {
			return err
		}
		in.TaprootBip32Derivation = append(
			in.TaprootBip32Derivation, derivation,
		)

	case InputTapInternalKeyType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if err := checkXOnlyKey(value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		in.TaprootInternalKey = value

	case InputTapMerkleRootType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if len(value) != 32 {
			return fmt.Errorf("%w: merkle root of %d bytes",
				ErrInvalidValue, len(value))
		}
		in.TaprootMerkleRoot = value

	default:
		in.Unknowns = append(in.Unknowns, &Unknown{
			Key:   append([]byte{keyType}, keyData...),
			Value: value,
		})
	}

	return nil
}

// serialize appends the input map, without its separator.
func (i *PInput) serialize(w *bytes.Buffer) error {
	if i.NonWitnessUtxo != nil {
		tx, err := txwire.Encode(i.NonWitnessUtxo)
		if err != nil {
			return err
		}
		writePair(w, InputNonWitnessUtxoType, nil, tx)
	}

	if i.WitnessUtxo != nil {
		txOut, err := txwire.EncodeTxOut(i.WitnessUtxo)
		if err != nil {
			return err
		}
		writePair(w, InputWitnessUtxoType, nil, txOut)
	}

	for _, sig := range i.PartialSigs {
		writePair(w, InputPartialSigType, sig.PubKey, sig.Signature)
	}

	i.SighashType.WhenSome(func(t txscript.SigHashType) {
		var value [4]byte
		binary.LittleEndian.PutUint32(value[:], uint32(t))
		writePair(w, InputSighashType, nil, value[:])
	})

	if i.RedeemScript != nil {
		writePair(w, InputRedeemScriptType, nil, i.RedeemScript)
	}

	if i.WitnessScript != nil {
		writePair(w, InputWitnessScriptType, nil, i.WitnessScript)
	}

	for _, d := range i.Bip32Derivation {
		writePair(w, InputBip32DerivationType, d.PubKey,
			serializeKeyOrigin(d.MasterKeyFingerprint, d.Bip32Path))
	}

	if i.FinalScriptSig != nil {
		writePair(w, InputFinalScriptSigType, nil, i.FinalScriptSig)
	}

	if i.FinalScriptWitness != nil {
		witness, err := txwire.SerializeWitness(i.FinalScriptWitness)
		if err != nil {
			return err
		}
		writePair(w, InputFinalScriptWitnessType, nil, witness)
	}

	i.PorCommitment.WhenSome(func(commitment string) {
		writePair(w, InputPorCommitmentType, nil, []byte(commitment))
	})

	if i.TaprootKeySpendSig != nil {
		writePair(w, InputTapKeySigType, nil, i.TaprootKeySpendSig)
	}

	for _, sig := range i.TaprootScriptSpendSig {
		keyData := append(bytes.Clone(sig.XOnlyPubKey), sig.LeafHash...)
		writePair(w, InputTapScriptSigType, keyData, sig.RawSignature())
	}

	for _, leaf := range i.TaprootLeafScript {
		value := append(bytes.Clone(leaf.Script), byte(leaf.LeafVersion))
		writePair(w, InputTapLeafScriptType, leaf.ControlBlock, value)
	}

	for _, d := range i.TaprootBip32Derivation {
		writePair(w, InputTapBip32DerivationType, d.XOnlyPubKey,
			serializeTaprootBip32Derivation(d))
	}

	if i.TaprootInternalKey != nil {
		writePair(w, InputTapInternalKeyType, nil, i.TaprootInternalKey)
	}

	if i.TaprootMerkleRoot != nil {
		writePair(w, InputTapMerkleRootType, nil, i.TaprootMerkleRoot)
	}

	writeUnknowns(w, i.Unknowns)

	return nil
}

// prevOut returns the output spent by the input at outpoint, taken from the
// witness UTXO when present and otherwise from the non-witness UTXO, whose
// hash must match the outpoint.
func (i *PInput) prevOut(outpoint wire.OutPoint) (*wire.TxOut, error) {
	if i.WitnessUtxo != nil {
		return i.WitnessUtxo, nil
	}

	if i.NonWitnessUtxo == nil {
		return nil, ErrMissingUtxoInfo
	}

	if txHash := i.NonWitnessUtxo.TxHash(); txHash != outpoint.Hash {
		return nil, fmt.Errorf("%w: have %v, outpoint %v",
			ErrNonWitnessUtxoMismatch, txHash, outpoint)
	}

	if int(outpoint.Index) >= len(i.NonWitnessUtxo.TxOut) {
		return nil, fmt.Errorf("%w: outpoint %v beyond %d outputs",
			ErrNonWitnessUtxoMismatch, outpoint,
			len(i.NonWitnessUtxo.TxOut))
	}

	return i.NonWitnessUtxo.TxOut[outpoint.Index], nil
}
