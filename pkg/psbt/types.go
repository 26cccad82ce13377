// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Global key types.
const (
	GlobalUnsignedTxType byte = 0x00
	GlobalXPubType       byte = 0x01
)

// Input key types.
const (
	InputNonWitnessUtxoType     byte = 0x00
	InputWitnessUtxoType        byte = 0x01
	InputPartialSigType         byte = 0x02
	InputSighashType            byte = 0x03
	InputRedeemScriptType       byte = 0x04
	InputWitnessScriptType      byte = 0x05
	InputBip32DerivationType    byte = 0x06
	InputFinalScriptSigType     byte = 0x07
	InputFinalScriptWitnessType byte = 0x08
	InputPorCommitmentType      byte = 0x09
	InputTapKeySigType          byte = 0x13
	InputTapScriptSigType       byte = 0x14
	InputTapLeafScriptType      byte = 0x15
	InputTapBip32DerivationType byte = 0x16
	InputTapInternalKeyType     byte = 0x17
	InputTapMerkleRootType      byte = 0x18
)

// Output key types.
const (
	OutputRedeemScriptType       byte = 0x00
	OutputWitnessScriptType      byte = 0x01
	OutputBip32DerivationType    byte = 0x02
	OutputTapInternalKeyType     byte = 0x05
	OutputTapTreeType            byte = 0x06
	OutputTapBip32DerivationType byte = 0x07
)

// Unknown is a key-value pair with a key type this package does not interpret.
// Key holds the full key including its type byte.
type Unknown struct {
	Key   []byte
	Value []byte
}

// Bip32Derivation is a BIP32 derivation hint for a public key.
type Bip32Derivation struct {
	PubKey               []byte
	MasterKeyFingerprint uint32
	Bip32Path            []uint32
}

// PartialSig is a signature for a legacy or segwit v0 input. Signature ends
// with the sighash type byte.
type PartialSig struct {
	PubKey    []byte
	Signature []byte
}

// TaprootScriptSpendSig is a schnorr signature for one tapscript leaf.
type TaprootScriptSpendSig struct {
	XOnlyPubKey []byte
	LeafHash    []byte

	// Signature is the 64-byte signature.
	Signature []byte

	// SigHash is the sighash type. SigHashDefault is not serialized.
	SigHash txscript.SigHashType
}

// RawSignature returns the signature as it appears on the witness stack.
func (s *TaprootScriptSpendSig) RawSignature() []byte {
	return taprootSig(s.Signature, s.SigHash)
}

// TaprootTapLeafScript is a leaf script together with the control block that
// proves its inclusion in the output key.
type TaprootTapLeafScript struct {
	ControlBlock []byte
	Script       []byte
	LeafVersion  txscript.TapscriptLeafVersion
}

// LeafHash returns the tapleaf hash of the script.
func (l *TaprootTapLeafScript) LeafHash() chainhash.Hash {
	return txscript.NewTapLeaf(l.LeafVersion, l.Script).TapHash()
}

// TaprootBip32Derivation is a BIP32 derivation hint for an x-only key and the
// leaves it appears in.
type TaprootBip32Derivation struct {
	XOnlyPubKey          []byte
	LeafHashes           [][]byte
	MasterKeyFingerprint uint32
	Bip32Path            []uint32
}

// TaprootTapLeaf is one leaf of an output's script tree, in depth-first order.
type TaprootTapLeaf struct {
	Depth       uint8
	LeafVersion txscript.TapscriptLeafVersion
	Script      []byte
}

// PInput holds the per-input fields of a packet. Byte slice fields are
// present when non-nil.
type PInput struct {
	NonWitnessUtxo         *wire.MsgTx
	WitnessUtxo            *wire.TxOut
	PartialSigs            []*PartialSig
	SighashType            fn.Option[txscript.SigHashType]
	RedeemScript           []byte
	WitnessScript          []byte
	Bip32Derivation        []*Bip32Derivation
	FinalScriptSig         []byte
	FinalScriptWitness     wire.TxWitness
	PorCommitment          fn.Option[string]
	TaprootKeySpendSig     []byte
	TaprootScriptSpendSig  []*TaprootScriptSpendSig
	TaprootLeafScript      []*TaprootTapLeafScript
	TaprootBip32Derivation []*TaprootBip32Derivation
	TaprootInternalKey     []byte
	TaprootMerkleRoot      []byte
	Unknowns               []*Unknown
}

// IsFinalized reports whether the input carries a final script or witness.
func (i *PInput) IsFinalized() bool {
	return i.FinalScriptSig != nil || i.FinalScriptWitness != nil
}

// clearFinalized drops every field that is only needed for signing. The
// UTXO fields and unknown pairs are kept.
func (i *PInput) clearFinalized() {
	i.PartialSigs = nil
	i.SighashType = fn.None[txscript.SigHashType]()
	i.RedeemScript = nil
	i.WitnessScript = nil
	i.Bip32Derivation = nil
	i.PorCommitment = fn.None[string]()
	i.TaprootKeySpendSig = nil
	i.TaprootScriptSpendSig = nil
	i.TaprootLeafScript = nil
	i.TaprootBip32Derivation = nil
	i.TaprootInternalKey = nil
	i.TaprootMerkleRoot = nil
}

// POutput holds the per-output fields of a packet.
type POutput struct {
	RedeemScript           []byte
	WitnessScript          []byte
	Bip32Derivation        []*Bip32Derivation
	TaprootInternalKey     []byte
	TaprootTapTree         []*TaprootTapLeaf
	TaprootBip32Derivation []*TaprootBip32Derivation
	Unknowns               []*Unknown
}

// Packet is a partially signed transaction. Inputs and Outputs always have
// the same length as the unsigned transaction's inputs and outputs.
type Packet struct {
	UnsignedTx *wire.MsgTx
	XPubs      []*XPub
	Inputs     []PInput
	Outputs    []POutput
	Unknowns   []*Unknown
}
